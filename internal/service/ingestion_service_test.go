package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
)

type serviceHarness struct {
	jobs     *fakeJobStore
	outcomes *fakeOutcomeStore
	products *fakeProductStore
	runner   *fakeRunner
	builder  *fakeBuilder
	cache    *fakeCache
	svc      IngestionService
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	h := &serviceHarness{
		jobs:     newFakeJobStore(),
		outcomes: &fakeOutcomeStore{},
		products: &fakeProductStore{},
		runner:   &fakeRunner{},
		builder:  &fakeBuilder{},
		cache:    newFakeCache(),
	}

	svc, err := NewIngestionService(h.jobs, h.outcomes, h.products, h.runner, h.builder, h.cache, t.TempDir(), nil)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestEnqueueImport_AcceptsValidUpload(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	tenantID := uuid.New()

	body := strings.NewReader("name,sku,description\nWidget,WID-1,desc\n")
	job, err := h.svc.EnqueueImport(context.Background(), tenantID, "catalog upload.csv", body)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, domain.JobKindIngestion, job.Kind)

	// File stored under the job id with a sanitized name.
	assert.Contains(t, filepath.Base(job.SourceFile), job.ID.String())
	assert.Contains(t, filepath.Base(job.SourceFile), "catalog_upload.csv")
	data, err := os.ReadFile(job.SourceFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WID-1")

	// Job persisted, task built and enqueued.
	stored, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)

	require.Len(t, h.builder.imports, 1)
	assert.Equal(t, job.ID, h.builder.imports[0].jobID)
	assert.Equal(t, job.SourceFile, h.builder.imports[0].filePath)
	assert.Equal(t, 1, h.runner.count())
}

func TestEnqueueImport_RejectsNonCSV(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)

	_, err := h.svc.EnqueueImport(context.Background(), uuid.New(), "products.xlsx", strings.NewReader("data"))
	require.ErrorIs(t, err, ErrInvalidUpload)
	assert.Zero(t, h.runner.count())
}

func TestEnqueueImport_RejectsMissingColumnsBeforeJobExists(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)

	body := strings.NewReader("name,price\nWidget,9.99\n")
	_, err := h.svc.EnqueueImport(context.Background(), uuid.New(), "bad.csv", body)
	require.ErrorIs(t, err, ErrInvalidUpload)
	assert.Contains(t, err.Error(), "missing required columns")

	// No job, no task, no orphaned file.
	jobs, _, listErr := h.svc.ListJobs(context.Background(), nil, 1, 10)
	require.NoError(t, listErr)
	assert.Empty(t, jobs)
	assert.Zero(t, h.runner.count())
}

func TestEnqueueImport_SubmitFailureAbandonsJob(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	h.runner.err = assert.AnError
	tenantID := uuid.New()

	body := strings.NewReader("name,sku,description\nWidget,WID-1,desc\n")
	_, err := h.svc.EnqueueImport(context.Background(), tenantID, "upload.csv", body)
	require.Error(t, err)

	jobs, _, listErr := h.svc.ListJobs(context.Background(), nil, 1, 10)
	require.NoError(t, listErr)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].ErrorSummary, "failed to enqueue")
}

func TestEnqueueBulkDelete_SnapshotsIDs(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	tenantID := uuid.New()
	h.products.snapshot = []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	job, err := h.svc.EnqueueBulkDelete(context.Background(), tenantID, store.ProductFilter{})
	require.NoError(t, err)

	assert.Equal(t, domain.JobKindBulkDelete, job.Kind)
	assert.Equal(t, 3, job.TotalRows)

	require.Len(t, h.builder.deletes, 1)
	assert.Equal(t, job.ID, h.builder.deletes[0].jobID)
	assert.Len(t, h.builder.deletes[0].productIDs, 3)
	assert.Equal(t, 1, h.runner.count())
}

func TestGetJobStatus_PrefersFresherCache(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	tenantID := uuid.New()

	job, err := domain.NewIngestionJob(tenantID, "file.csv")
	require.NoError(t, err)
	require.NoError(t, h.jobs.Create(context.Background(), job))
	require.NoError(t, h.jobs.MarkRunning(context.Background(), job.ID, 100))
	require.NoError(t, h.jobs.UpdateProgress(context.Background(), job.ID, 40, 0))

	// Cache is ahead of the last committed batch.
	require.NoError(t, h.cache.Set(context.Background(), job.ID, domain.JobStatusRunning, 55, 100))

	status, err := h.svc.GetJobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, status.Processed)
	assert.Equal(t, 100, status.Total)
	assert.Equal(t, "cache", status.Source)
	assert.InDelta(t, 55.0, status.Progress, 0.01)
}

func TestGetJobStatus_IgnoresStaleCache(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	tenantID := uuid.New()

	job, err := domain.NewIngestionJob(tenantID, "file.csv")
	require.NoError(t, err)
	require.NoError(t, h.jobs.Create(context.Background(), job))
	require.NoError(t, h.jobs.MarkRunning(context.Background(), job.ID, 100))
	require.NoError(t, h.jobs.UpdateProgress(context.Background(), job.ID, 80, 0))

	require.NoError(t, h.cache.Set(context.Background(), job.ID, domain.JobStatusRunning, 20, 100))

	status, err := h.svc.GetJobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, status.Processed)
	assert.Equal(t, "database", status.Source)
}

func TestGetJobStatus_TerminalJobServesDurableCounters(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	tenantID := uuid.New()

	job, err := domain.NewIngestionJob(tenantID, "file.csv")
	require.NoError(t, err)
	require.NoError(t, h.jobs.Create(context.Background(), job))
	require.NoError(t, h.jobs.MarkRunning(context.Background(), job.ID, 10))
	require.NoError(t, h.jobs.UpdateProgress(context.Background(), job.ID, 10, 0))
	require.NoError(t, h.jobs.TransitionToTerminal(context.Background(), job.ID, domain.JobStatusSucceeded, ""))

	// Even a wildly ahead cache snapshot is ignored once terminal.
	require.NoError(t, h.cache.Set(context.Background(), job.ID, domain.JobStatusRunning, 999, 1000))

	status, err := h.svc.GetJobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, status.Processed)
	assert.Equal(t, "database", status.Source)
}

func TestGetJobStatus_NotFound(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	_, err := h.svc.GetJobStatus(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelJob(t *testing.T) {
	t.Parallel()

	h := newServiceHarness(t)
	tenantID := uuid.New()

	job, err := domain.NewIngestionJob(tenantID, "file.csv")
	require.NoError(t, err)
	require.NoError(t, h.jobs.Create(context.Background(), job))

	require.NoError(t, h.svc.CancelJob(context.Background(), job.ID))

	cancelled, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)

	// A finished job cannot be cancelled again.
	require.ErrorIs(t, h.svc.CancelJob(context.Background(), job.ID), ErrJobFinished)
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "products.csv", sanitizeFilename("products.csv"))
	assert.Equal(t, "my_upload__1_.csv", sanitizeFilename("my upload (1).csv"))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "upload.csv", sanitizeFilename(""))
}
