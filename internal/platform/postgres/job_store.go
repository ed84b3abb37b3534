package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/platform/logger"
	"github.com/phrazzld/catalog-api/internal/store"
)

// terminalStatuses is inlined into guarded UPDATEs so a job can never
// leave a terminal state, no matter how often the queue redelivers it.
const terminalStatuses = "('succeeded','failed','partially_failed','cancelled')"

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a new JobStore that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// Create persists a new job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.IngestionJob) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO ingestion_jobs
			(id, tenant_id, kind, source_file, status, total_rows, processed_rows, failed_rows, error_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.TenantID,
		job.Kind,
		job.SourceFile,
		job.Status,
		job.TotalRows,
		job.ProcessedRows,
		job.FailedRows,
		job.ErrorSummary,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create job", "job_id", job.ID, "error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.IngestionJob, error) {
	query := `
		SELECT id, tenant_id, kind, source_file, status, total_rows, processed_rows, failed_rows,
		       COALESCE(error_summary, ''), created_at, updated_at, completed_at
		FROM ingestion_jobs
		WHERE id = $1
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", MapError(err))
	}

	return job, nil
}

// List returns jobs filtered by optional status, newest first.
func (s *PostgresJobStore) List(ctx context.Context, status *domain.JobStatus, page, limit int) ([]*domain.IngestionJob, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	var (
		countQuery string
		listQuery  string
		args       []any
	)

	if status != nil {
		countQuery = `SELECT COUNT(*) FROM ingestion_jobs WHERE status = $1`
		listQuery = `
			SELECT id, tenant_id, kind, source_file, status, total_rows, processed_rows, failed_rows,
			       COALESCE(error_summary, ''), created_at, updated_at, completed_at
			FROM ingestion_jobs
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		args = []any{*status}
	} else {
		countQuery = `SELECT COUNT(*) FROM ingestion_jobs`
		listQuery = `
			SELECT id, tenant_id, kind, source_file, status, total_rows, processed_rows, failed_rows,
			       COALESCE(error_summary, ''), created_at, updated_at, completed_at
			FROM ingestion_jobs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", MapError(err))
	}

	rows, err := s.db.QueryContext(ctx, listQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.IngestionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, total, nil
}

// MarkRunning transitions a non-terminal job to running and records the
// total row count.
func (s *PostgresJobStore) MarkRunning(ctx context.Context, id uuid.UUID, totalRows int) error {
	query := `
		UPDATE ingestion_jobs
		SET status = 'running', total_rows = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ` + terminalStatuses

	result, err := s.db.ExecContext(ctx, query, id, totalRows, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", MapError(err))
	}

	return s.explainGuardMiss(ctx, result, id)
}

// UpdateProgress sets the durable progress counters on a non-terminal
// job. Zero rows affected is a no-op, not an error: a zombie worker
// committing past its lease must not rewrite counters the reclaiming
// worker already finalized.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, processedRows, failedRows int) error {
	query := `
		UPDATE ingestion_jobs
		SET processed_rows = $2, failed_rows = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ` + terminalStatuses

	if _, err := s.db.ExecContext(ctx, query, id, processedRows, failedRows, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update job progress: %w", MapError(err))
	}

	return nil
}

// TransitionToTerminal moves the job to a terminal status exactly once.
func (s *PostgresJobStore) TransitionToTerminal(ctx context.Context, id uuid.UUID, status domain.JobStatus, errorSummary string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, status)
	}

	query := `
		UPDATE ingestion_jobs
		SET status = $2,
		    error_summary = CASE WHEN $3 = '' THEN error_summary ELSE $3 END,
		    completed_at = $4,
		    updated_at = $4
		WHERE id = $1 AND status NOT IN ` + terminalStatuses

	result, err := s.db.ExecContext(ctx, query, id, status, errorSummary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", MapError(err))
	}

	return s.explainGuardMiss(ctx, result, id)
}

// AppendErrorSummary adds a note without touching status. Used for
// webhook delivery failures, which must not re-fail the job.
func (s *PostgresJobStore) AppendErrorSummary(ctx context.Context, id uuid.UUID, note string) error {
	query := `
		UPDATE ingestion_jobs
		SET error_summary = CONCAT_WS('; ', NULLIF(error_summary, ''), $2::text),
		    updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append error summary: %w", MapError(err))
	}

	return CheckRowsAffected(result, "job")
}

// explainGuardMiss distinguishes "job missing" from "job already
// terminal" after a guarded update touched zero rows.
func (s *PostgresJobStore) explainGuardMiss(ctx context.Context, result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return store.ErrTerminalStatus
	}
	return store.ErrUpdateFailed
}

// rowScanner lets scanJob work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.IngestionJob, error) {
	var (
		job         domain.IngestionJob
		completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.Kind,
		&job.SourceFile,
		&job.Status,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.FailedRows,
		&job.ErrorSummary,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}
