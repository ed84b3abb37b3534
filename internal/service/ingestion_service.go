package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/ingest"
	"github.com/phrazzld/catalog-api/internal/platform/rediscache"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/task"
)

// TaskRunner defines the interface for submitting background tasks.
type TaskRunner interface {
	// Submit adds a task to the processing queue
	Submit(ctx context.Context, t task.Task) error
}

// TaskBuilder creates the concrete tasks the service enqueues.
type TaskBuilder interface {
	NewCatalogImportTask(jobID, tenantID uuid.UUID, filePath string) (task.Task, error)
	NewBulkDeleteTask(jobID, tenantID uuid.UUID, productIDs []uuid.UUID) (task.Task, error)
}

// ProgressCache reads and writes the advisory progress mirror.
type ProgressCache interface {
	Set(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, processed, total int) error
	Get(ctx context.Context, jobID uuid.UUID) (*rediscache.ProgressSnapshot, error)
}

// JobStatus is the composed view served to status polls: the durable
// job record, with counters upgraded from the cache when it is fresher.
type JobStatus struct {
	Job       *domain.IngestionJob `json:"job"`
	Processed int                  `json:"processed"`
	Total     int                  `json:"total"`
	Progress  float64              `json:"progress"`
	// Source reports where the counters came from: "database" or "cache".
	Source string `json:"source"`
}

// IngestionService accepts catalog uploads and bulk delete requests,
// creates their jobs, and enqueues the background tasks that process
// them.
type IngestionService interface {
	// EnqueueImport validates and stores an uploaded CSV file, creates a
	// pending job, and enqueues the import task. Validation failures
	// return ErrInvalidUpload before any job exists.
	EnqueueImport(ctx context.Context, tenantID uuid.UUID, filename string, file io.Reader) (*domain.IngestionJob, error)

	// EnqueueBulkDelete snapshots the ids of products matching the
	// filter and enqueues their deletion.
	EnqueueBulkDelete(ctx context.Context, tenantID uuid.UUID, filter store.ProductFilter) (*domain.IngestionJob, error)

	// GetJobStatus returns the job's status view.
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error)

	// ListJobs returns jobs filtered by optional status, newest first.
	ListJobs(ctx context.Context, status *domain.JobStatus, page, limit int) ([]*domain.IngestionJob, int, error)

	// ListRowOutcomes returns the job's recorded row outcomes in row
	// order; problemsOnly restricts to rejected and skipped rows.
	ListRowOutcomes(ctx context.Context, jobID uuid.UUID, problemsOnly bool, page, limit int) ([]*domain.RowOutcome, int, error)

	// CancelJob requests cancellation of a non-terminal job. The running
	// task notices at its next batch boundary.
	CancelJob(ctx context.Context, jobID uuid.UUID) error
}

type ingestionServiceImpl struct {
	jobs      store.JobStore
	outcomes  store.OutcomeStore
	products  store.ProductStore
	runner    TaskRunner
	tasks     TaskBuilder
	cache     ProgressCache
	uploadDir string
	logger    *slog.Logger
}

// NewIngestionService creates an IngestionService.
// It returns an error if any of the required dependencies are nil.
func NewIngestionService(
	jobs store.JobStore,
	outcomes store.OutcomeStore,
	products store.ProductStore,
	runner TaskRunner,
	tasks TaskBuilder,
	cache ProgressCache,
	uploadDir string,
	logger *slog.Logger,
) (IngestionService, error) {
	if jobs == nil || outcomes == nil || products == nil {
		return nil, &Error{Operation: "create_service", Message: "stores cannot be nil"}
	}
	if runner == nil || tasks == nil {
		return nil, &Error{Operation: "create_service", Message: "task runner and builder cannot be nil"}
	}
	if cache == nil {
		return nil, &Error{Operation: "create_service", Message: "progress cache cannot be nil"}
	}
	if uploadDir == "" {
		return nil, &Error{Operation: "create_service", Message: "upload directory cannot be empty"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ingestionServiceImpl{
		jobs:      jobs,
		outcomes:  outcomes,
		products:  products,
		runner:    runner,
		tasks:     tasks,
		cache:     cache,
		uploadDir: uploadDir,
		logger:    logger.With("component", "ingestion_service"),
	}, nil
}

// unsafeFilenameChars matches everything not kept by sanitizeFilename.
var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFilename reduces an uploaded filename to a safe basename.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == ".." {
		base = "upload.csv"
	}
	return base
}

func (s *ingestionServiceImpl) EnqueueImport(ctx context.Context, tenantID uuid.UUID, filename string, file io.Reader) (*domain.IngestionJob, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return nil, fmt.Errorf("%w: only .csv files are accepted", ErrInvalidUpload)
	}

	job, err := domain.NewIngestionJob(tenantID, filename)
	if err != nil {
		return nil, newError("enqueue_import", "failed to create job", err)
	}

	// The stored name carries the job id so a crash between persisting
	// the file and creating the job leaves an identifiable orphan.
	storedPath := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", job.ID, sanitizeFilename(filename)))
	job.SourceFile = storedPath

	if err := s.persistUpload(storedPath, file); err != nil {
		return nil, newError("enqueue_import", "failed to store upload", err)
	}

	// Header problems are caught here, before the job exists, so the
	// caller gets a synchronous rejection instead of a failed job.
	if err := s.validateHeader(storedPath); err != nil {
		_ = os.Remove(storedPath)
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		_ = os.Remove(storedPath)
		return nil, newError("enqueue_import", "failed to create job", err)
	}

	if err := s.cache.Set(ctx, job.ID, domain.JobStatusPending, 0, 0); err != nil {
		s.logger.Warn("failed to seed progress cache", "job_id", job.ID, "error", err)
	}

	importTask, err := s.tasks.NewCatalogImportTask(job.ID, tenantID, storedPath)
	if err != nil {
		return nil, newError("enqueue_import", "failed to build import task", err)
	}

	if err := s.runner.Submit(ctx, importTask); err != nil {
		s.abandonJob(ctx, job.ID, fmt.Sprintf("failed to enqueue import task: %v", err))
		return nil, newError("enqueue_import", "failed to enqueue import task", err)
	}

	s.logger.Info("import enqueued",
		"job_id", job.ID,
		"tenant_id", tenantID,
		"file", storedPath)
	return job, nil
}

func (s *ingestionServiceImpl) EnqueueBulkDelete(ctx context.Context, tenantID uuid.UUID, filter store.ProductFilter) (*domain.IngestionJob, error) {
	ids, err := s.products.SnapshotIDs(ctx, tenantID, filter)
	if err != nil {
		return nil, newError("enqueue_bulk_delete", "failed to snapshot products", err)
	}

	job, err := domain.NewBulkDeleteJob(tenantID)
	if err != nil {
		return nil, newError("enqueue_bulk_delete", "failed to create job", err)
	}
	job.TotalRows = len(ids)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, newError("enqueue_bulk_delete", "failed to create job", err)
	}

	if err := s.cache.Set(ctx, job.ID, domain.JobStatusPending, 0, len(ids)); err != nil {
		s.logger.Warn("failed to seed progress cache", "job_id", job.ID, "error", err)
	}

	deleteTask, err := s.tasks.NewBulkDeleteTask(job.ID, tenantID, ids)
	if err != nil {
		return nil, newError("enqueue_bulk_delete", "failed to build delete task", err)
	}

	if err := s.runner.Submit(ctx, deleteTask); err != nil {
		s.abandonJob(ctx, job.ID, fmt.Sprintf("failed to enqueue delete task: %v", err))
		return nil, newError("enqueue_bulk_delete", "failed to enqueue delete task", err)
	}

	s.logger.Info("bulk delete enqueued",
		"job_id", job.ID,
		"tenant_id", tenantID,
		"snapshot_size", len(ids))
	return job, nil
}

func (s *ingestionServiceImpl) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, newError("get_job_status", "failed to load job", err)
	}

	status := &JobStatus{
		Job:       job,
		Processed: job.ProcessedRows,
		Total:     job.TotalRows,
		Progress:  job.ProgressPercentage(),
		Source:    "database",
	}

	// The cache may be ahead of the last committed batch; prefer it for
	// in-flight jobs when it is. Terminal jobs always serve durable
	// counters.
	if !job.Status.IsTerminal() {
		snapshot, err := s.cache.Get(ctx, jobID)
		if err != nil {
			s.logger.Warn("failed to read progress cache", "job_id", jobID, "error", err)
		} else if snapshot != nil && snapshot.Processed >= job.ProcessedRows {
			status.Processed = snapshot.Processed
			if snapshot.Total > 0 {
				status.Total = snapshot.Total
			}
			if status.Total > 0 {
				status.Progress = float64(status.Processed) / float64(status.Total) * 100
			}
			status.Source = "cache"
		}
	}

	return status, nil
}

func (s *ingestionServiceImpl) ListJobs(ctx context.Context, status *domain.JobStatus, page, limit int) ([]*domain.IngestionJob, int, error) {
	jobs, total, err := s.jobs.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, newError("list_jobs", "failed to list jobs", err)
	}
	return jobs, total, nil
}

func (s *ingestionServiceImpl) ListRowOutcomes(ctx context.Context, jobID uuid.UUID, problemsOnly bool, page, limit int) ([]*domain.RowOutcome, int, error) {
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, 0, ErrJobNotFound
		}
		return nil, 0, newError("list_row_outcomes", "failed to load job", err)
	}

	outcomes, total, err := s.outcomes.ListByJob(ctx, jobID, problemsOnly, page, limit)
	if err != nil {
		return nil, 0, newError("list_row_outcomes", "failed to list outcomes", err)
	}
	return outcomes, total, nil
}

func (s *ingestionServiceImpl) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	err := s.jobs.TransitionToTerminal(ctx, jobID, domain.JobStatusCancelled, "cancelled by user")
	if err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			return ErrJobFinished
		}
		if errors.Is(err, store.ErrJobNotFound) || errors.Is(err, store.ErrUpdateFailed) {
			// The guard update reports not-found and already-terminal
			// the same way for missing rows.
			if _, getErr := s.jobs.GetByID(ctx, jobID); errors.Is(getErr, store.ErrJobNotFound) {
				return ErrJobNotFound
			}
		}
		return newError("cancel_job", "failed to cancel job", err)
	}

	if cacheErr := s.cache.Set(ctx, jobID, domain.JobStatusCancelled, 0, 0); cacheErr != nil {
		s.logger.Warn("failed to mirror cancellation to cache", "job_id", jobID, "error", cacheErr)
	}

	s.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

// persistUpload streams the request body to disk.
func (s *ingestionServiceImpl) persistUpload(path string, file io.Reader) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write upload file: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to flush upload file: %w", err)
	}
	return nil
}

// validateHeader opens the stored file and checks the required columns.
func (s *ingestionServiceImpl) validateHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, err = ingest.NewReader(f)
	return err
}

// abandonJob marks a job failed when its task could not be enqueued.
func (s *ingestionServiceImpl) abandonJob(ctx context.Context, jobID uuid.UUID, summary string) {
	if err := s.jobs.TransitionToTerminal(ctx, jobID, domain.JobStatusFailed, summary); err != nil {
		s.logger.Error("failed to abandon job", "job_id", jobID, "error", err)
	}
}
