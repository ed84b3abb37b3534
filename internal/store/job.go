package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
)

// JobStore defines the interface for ingestion job persistence. The job
// runner is the only writer of status and progress fields while a job
// executes; everything else reads snapshots.
type JobStore interface {
	// Create persists a new job. Returns ErrDuplicate if the ID exists.
	Create(ctx context.Context, job *domain.IngestionJob) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IngestionJob, error)

	// List returns jobs filtered by optional status, newest first, plus
	// the total count for pagination.
	List(ctx context.Context, status *domain.JobStatus, page, limit int) ([]*domain.IngestionJob, int, error)

	// MarkRunning transitions a pending (or redelivered running) job to
	// running and records the total row count. It is a no-op for a job
	// already running with the same totals, and returns ErrTerminalStatus
	// if the job has already finished.
	MarkRunning(ctx context.Context, id uuid.UUID, totalRows int) error

	// UpdateProgress sets the processed and failed row counters. Called
	// once per committed batch, inside the batch transaction.
	UpdateProgress(ctx context.Context, id uuid.UUID, processedRows, failedRows int) error

	// TransitionToTerminal moves the job to the given terminal status
	// exactly once. The update is guarded in SQL so a redelivered job
	// cannot finish twice: if the job is already terminal the store
	// returns ErrTerminalStatus and callers skip event emission.
	TransitionToTerminal(ctx context.Context, id uuid.UUID, status domain.JobStatus, errorSummary string) error

	// AppendErrorSummary adds a note to the job's error summary without
	// touching status. Used for webhook delivery failures, which never
	// re-fail the originating job.
	AppendErrorSummary(ctx context.Context, id uuid.UUID, note string) error

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) JobStore
}
