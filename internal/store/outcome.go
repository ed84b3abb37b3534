package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
)

// OutcomeCounts aggregates a job's recorded row decisions. Computed
// from the row_outcomes table, never from the cache.
type OutcomeCounts struct {
	Total   int
	Created int
	Updated int
	Skipped int
	Failed  int
}

// OutcomeStore defines the interface for the append-only row outcome
// ledger. Every row decision is durably recorded before the row is
// considered done, which makes crash resume a "skip recorded ordinals"
// scan.
type OutcomeStore interface {
	// InsertBatch appends outcome records, ignoring ordinals already
	// recorded for their job (idempotent replay). Returns the number of
	// rows actually inserted.
	//
	// IMPORTANT: run this within the same transaction as the product
	// mutations it describes; use WithTx with store.RunInTransaction.
	InsertBatch(ctx context.Context, outcomes []*domain.RowOutcome) (int, error)

	// MaxRecordedOrdinal returns the highest row ordinal recorded for the
	// job, or 0 when no rows are recorded. Outcomes are written in file
	// order by a single leased worker, so recorded ordinals form a
	// prefix and resume starts at max+1.
	MaxRecordedOrdinal(ctx context.Context, jobID uuid.UUID) (int, error)

	// CountByJob aggregates the job's recorded outcomes.
	CountByJob(ctx context.Context, jobID uuid.UUID) (OutcomeCounts, error)

	// ListByJob returns outcome records for the job in row order, plus
	// the total count. When problemsOnly is set, only rejected and
	// skipped rows are returned (the downloadable error report).
	ListByJob(ctx context.Context, jobID uuid.UUID, problemsOnly bool, page, limit int) ([]*domain.RowOutcome, int, error)

	// WithTx returns a new OutcomeStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) OutcomeStore
}
