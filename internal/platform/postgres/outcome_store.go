package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
)

// PostgresOutcomeStore implements the store.OutcomeStore interface
// using PostgreSQL. The unique (job_id, row_ordinal) index plus
// ON CONFLICT DO NOTHING is what makes batch replay idempotent.
type PostgresOutcomeStore struct {
	db store.DBTX
}

// NewPostgresOutcomeStore creates a new PostgresOutcomeStore.
func NewPostgresOutcomeStore(db store.DBTX) *PostgresOutcomeStore {
	return &PostgresOutcomeStore{db: db}
}

// WithTx returns a new OutcomeStore that uses the provided transaction.
func (s *PostgresOutcomeStore) WithTx(tx *sql.Tx) store.OutcomeStore {
	return &PostgresOutcomeStore{db: tx}
}

// InsertBatch appends outcome records, skipping ordinals already recorded.
func (s *PostgresOutcomeStore) InsertBatch(ctx context.Context, outcomes []*domain.RowOutcome) (int, error) {
	query := `
		INSERT INTO row_outcomes (job_id, row_ordinal, outcome, reason, product_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id, row_ordinal) DO NOTHING
	`

	inserted := 0
	for _, outcome := range outcomes {
		if err := outcome.Validate(); err != nil {
			return inserted, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		var productID any
		if outcome.ProductID != nil {
			productID = *outcome.ProductID
		}

		result, err := s.db.ExecContext(ctx, query,
			outcome.JobID,
			outcome.RowOrdinal,
			outcome.Outcome,
			outcome.Reason,
			productID,
			outcome.CreatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert row outcome: %w", MapError(err))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rowsAffected)
	}

	return inserted, nil
}

// MaxRecordedOrdinal returns the highest recorded ordinal for the job,
// or 0 when none exist.
func (s *PostgresOutcomeStore) MaxRecordedOrdinal(ctx context.Context, jobID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(MAX(row_ordinal), 0) FROM row_outcomes WHERE job_id = $1`

	var max int
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max recorded ordinal: %w", MapError(err))
	}

	return max, nil
}

// CountByJob aggregates the job's recorded outcomes from the ledger.
func (s *PostgresOutcomeStore) CountByJob(ctx context.Context, jobID uuid.UUID) (store.OutcomeCounts, error) {
	query := `SELECT outcome, COUNT(*) FROM row_outcomes WHERE job_id = $1 GROUP BY outcome`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return store.OutcomeCounts{}, fmt.Errorf("failed to count outcomes: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var counts store.OutcomeCounts
	for rows.Next() {
		var (
			outcome domain.OutcomeType
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return store.OutcomeCounts{}, fmt.Errorf("failed to scan outcome count: %w", err)
		}

		counts.Total += n
		switch outcome {
		case domain.OutcomeCreated:
			counts.Created += n
		case domain.OutcomeUpdated:
			counts.Updated += n
		case domain.OutcomeSkippedDuplicate:
			counts.Skipped += n
		case domain.OutcomeRejected:
			counts.Failed += n
		}
	}

	if err := rows.Err(); err != nil {
		return store.OutcomeCounts{}, fmt.Errorf("error iterating outcome counts: %w", err)
	}

	return counts, nil
}

// ListByJob returns outcome records in row order plus the total count.
func (s *PostgresOutcomeStore) ListByJob(ctx context.Context, jobID uuid.UUID, problemsOnly bool, page, limit int) ([]*domain.RowOutcome, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	offset := (page - 1) * limit

	filter := ""
	if problemsOnly {
		filter = ` AND outcome IN ('rejected', 'skipped_duplicate')`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM row_outcomes WHERE job_id = $1` + filter
	if err := s.db.QueryRowContext(ctx, countQuery, jobID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count row outcomes: %w", MapError(err))
	}

	listQuery := `
		SELECT job_id, row_ordinal, outcome, COALESCE(reason, ''), product_id, created_at
		FROM row_outcomes
		WHERE job_id = $1` + filter + `
		ORDER BY row_ordinal ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, listQuery, jobID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list row outcomes: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var outcomes []*domain.RowOutcome
	for rows.Next() {
		var (
			outcome   domain.RowOutcome
			productID uuid.NullUUID
		)
		if err := rows.Scan(
			&outcome.JobID,
			&outcome.RowOrdinal,
			&outcome.Outcome,
			&outcome.Reason,
			&productID,
			&outcome.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan row outcome: %w", err)
		}

		if productID.Valid {
			id := productID.UUID
			outcome.ProductID = &id
		}
		outcomes = append(outcomes, &outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating row outcomes: %w", err)
	}

	return outcomes, total, nil
}
