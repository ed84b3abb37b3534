package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeCatalogImport processes an uploaded CSV file into products.
	TaskTypeCatalogImport = "catalog_import"

	// TaskTypeBulkDelete deletes a snapshotted set of products.
	TaskTypeBulkDelete = "bulk_delete"
)

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// TaskRecord is a task row loaded from the durable ledger. Records
// carry no behavior; the Factory rebuilds an executable Task from a
// record's type and payload.
type TaskRecord struct {
	ID           uuid.UUID
	Type         string
	Payload      json.RawMessage
	Status       TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a task to the database
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus updates the status of a task
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetPendingTasks retrieves all tasks with "pending" status
	GetPendingTasks(ctx context.Context) ([]TaskRecord, error)

	// GetProcessingTasks retrieves tasks with "processing" status.
	// If olderThan is non-zero, only returns tasks whose lease has been
	// held longer than the specified duration.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]TaskRecord, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}

// Factory rebuilds an executable task from a persisted record. Used by
// the runner when recovering after a restart or reclaiming an expired
// lease.
type Factory interface {
	Rebuild(record TaskRecord) (Task, error)
}

// baseTask carries the identity fields shared by all concrete tasks.
type baseTask struct {
	id       uuid.UUID
	taskType string
	payload  []byte
	status   TaskStatus
}

func (t *baseTask) ID() uuid.UUID      { return t.id }
func (t *baseTask) Type() string       { return t.taskType }
func (t *baseTask) Payload() []byte    { return t.payload }
func (t *baseTask) Status() TaskStatus { return t.status }
