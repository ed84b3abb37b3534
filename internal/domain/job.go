package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of an ingestion or bulk
// delete job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending         JobStatus = "pending"
	JobStatusRunning         JobStatus = "running"
	JobStatusPartiallyFailed JobStatus = "partially_failed"
	JobStatusSucceeded       JobStatus = "succeeded"
	JobStatusFailed          JobStatus = "failed"
	JobStatusCancelled       JobStatus = "cancelled"
)

// JobKind distinguishes ingestion jobs from bulk delete jobs. Both kinds
// share the same progress-tracking shape.
type JobKind string

// Possible job kind values
const (
	JobKindIngestion  JobKind = "ingestion"
	JobKindBulkDelete JobKind = "bulk_delete"
)

// Common validation errors for IngestionJob
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrEmptyJobTenantID = errors.New("job tenant ID cannot be empty")
	ErrEmptySourceFile  = errors.New("job source file cannot be empty")
	ErrInvalidJobKind   = errors.New("invalid job kind")
	ErrNegativeRowCount = errors.New("row counts cannot be negative")
	ErrProcessedOverrun = errors.New("processed rows cannot exceed total rows")
)

// IngestionJob tracks one ingestion or bulk delete run end to end. The
// job runner exclusively owns the status and progress fields while the
// job executes; the durable store is the source of truth for progress
// after process restarts.
type IngestionJob struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Kind          JobKind    `json:"kind"`
	SourceFile    string     `json:"source_file"`
	Status        JobStatus  `json:"status"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	FailedRows    int        `json:"failed_rows"`
	ErrorSummary  string     `json:"error_summary,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewIngestionJob creates a new pending ingestion job for the given
// tenant and source file reference. Returns an error if validation fails.
func NewIngestionJob(tenantID uuid.UUID, sourceFile string) (*IngestionJob, error) {
	return newJob(tenantID, JobKindIngestion, sourceFile)
}

// NewBulkDeleteJob creates a new pending bulk delete job. The source
// file field is unused for delete jobs; the id snapshot travels in the
// task payload instead.
func NewBulkDeleteJob(tenantID uuid.UUID) (*IngestionJob, error) {
	now := time.Now().UTC()
	job := &IngestionJob{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Kind:      JobKindBulkDelete,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if job.TenantID == uuid.Nil {
		return nil, ErrEmptyJobTenantID
	}

	return job, nil
}

func newJob(tenantID uuid.UUID, kind JobKind, sourceFile string) (*IngestionJob, error) {
	now := time.Now().UTC()
	job := &IngestionJob{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       kind,
		SourceFile: sourceFile,
		Status:     JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the IngestionJob has valid data.
// Returns an error if any field fails validation.
func (j *IngestionJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.TenantID == uuid.Nil {
		return ErrEmptyJobTenantID
	}

	if !isValidJobKind(j.Kind) {
		return ErrInvalidJobKind
	}

	if j.Kind == JobKindIngestion && j.SourceFile == "" {
		return ErrEmptySourceFile
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if j.TotalRows < 0 || j.ProcessedRows < 0 || j.FailedRows < 0 {
		return ErrNegativeRowCount
	}

	if j.TotalRows > 0 && j.ProcessedRows > j.TotalRows {
		return ErrProcessedOverrun
	}

	return nil
}

// IsTerminal reports whether the status is a terminal state. Terminal
// jobs never transition again; this guard is what keeps completion
// events from firing twice on queue redelivery.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusPartiallyFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic status machine: pending -> running -> terminal, with
// cancellation allowed from any non-terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Transition updates the job's status after checking the transition is
// legal, and stamps UpdatedAt (and CompletedAt for terminal states).
func (j *IngestionJob) Transition(next JobStatus) error {
	if !isValidJobStatus(next) {
		return ErrInvalidJobStatus
	}

	if !j.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	j.Status = next
	j.UpdatedAt = now
	if next.IsTerminal() {
		j.CompletedAt = &now
	}
	return nil
}

// ProgressPercentage returns the job's completion percentage rounded to
// the granularity callers expect in status payloads. A zero total
// yields zero.
func (j *IngestionJob) ProgressPercentage() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	return float64(j.ProcessedRows) / float64(j.TotalRows) * 100
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusRunning, JobStatusPartiallyFailed,
		JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidJobKind checks if the given kind is a valid JobKind.
func isValidJobKind(kind JobKind) bool {
	switch kind {
	case JobKindIngestion, JobKindBulkDelete:
		return true
	default:
		return false
	}
}
