package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestionJob(t *testing.T) {
	t.Parallel()

	t.Run("valid job", func(t *testing.T) {
		t.Parallel()

		tenantID := uuid.New()
		job, err := NewIngestionJob(tenantID, "uploads/catalog.csv")

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, tenantID, job.TenantID)
		assert.Equal(t, JobKindIngestion, job.Kind)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Zero(t, job.TotalRows)
		assert.Zero(t, job.ProcessedRows)
	})

	t.Run("missing tenant", func(t *testing.T) {
		t.Parallel()

		_, err := NewIngestionJob(uuid.Nil, "uploads/catalog.csv")
		assert.ErrorIs(t, err, ErrEmptyJobTenantID)
	})

	t.Run("missing source file", func(t *testing.T) {
		t.Parallel()

		_, err := NewIngestionJob(uuid.New(), "")
		assert.ErrorIs(t, err, ErrEmptySourceFile)
	})
}

func TestJobStatusTransitions(t *testing.T) {
	t.Parallel()

	t.Run("monotonic happy path", func(t *testing.T) {
		t.Parallel()

		job, err := NewIngestionJob(uuid.New(), "catalog.csv")
		require.NoError(t, err)

		require.NoError(t, job.Transition(JobStatusRunning))
		require.NoError(t, job.Transition(JobStatusSucceeded))
		require.NotNil(t, job.CompletedAt)

		// No transitions out of a terminal state.
		assert.ErrorIs(t, job.Transition(JobStatusRunning), ErrInvalidTransition)
		assert.ErrorIs(t, job.Transition(JobStatusFailed), ErrInvalidTransition)
	})

	t.Run("pending may fail immediately", func(t *testing.T) {
		t.Parallel()

		job, err := NewIngestionJob(uuid.New(), "catalog.csv")
		require.NoError(t, err)

		require.NoError(t, job.Transition(JobStatusFailed))
		assert.True(t, job.Status.IsTerminal())
	})

	t.Run("cancellation from running", func(t *testing.T) {
		t.Parallel()

		job, err := NewIngestionJob(uuid.New(), "catalog.csv")
		require.NoError(t, err)

		require.NoError(t, job.Transition(JobStatusRunning))
		require.NoError(t, job.Transition(JobStatusCancelled))
		assert.True(t, job.Status.IsTerminal())
	})

	t.Run("pending cannot jump to partially failed", func(t *testing.T) {
		t.Parallel()

		job, err := NewIngestionJob(uuid.New(), "catalog.csv")
		require.NoError(t, err)

		assert.ErrorIs(t, job.Transition(JobStatusPartiallyFailed), ErrInvalidTransition)
	})
}

func TestJobValidate_ProgressInvariant(t *testing.T) {
	t.Parallel()

	job, err := NewIngestionJob(uuid.New(), "catalog.csv")
	require.NoError(t, err)

	job.TotalRows = 10
	job.ProcessedRows = 11
	assert.ErrorIs(t, job.Validate(), ErrProcessedOverrun)

	job.ProcessedRows = 10
	assert.NoError(t, job.Validate())
}

func TestJobProgressPercentage(t *testing.T) {
	t.Parallel()

	job, err := NewIngestionJob(uuid.New(), "catalog.csv")
	require.NoError(t, err)

	assert.Zero(t, job.ProgressPercentage())

	job.TotalRows = 200
	job.ProcessedRows = 50
	assert.InDelta(t, 25.0, job.ProgressPercentage(), 0.001)
}
