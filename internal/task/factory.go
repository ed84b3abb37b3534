package task

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/store"
)

// TaskFactoryConfig tunes the batch sizes tasks commit with.
type TaskFactoryConfig struct {
	ImportBatchSize int
	DeleteBatchSize int
}

// TaskFactory builds executable tasks, both for fresh submissions and
// when rebuilding from durable records during recovery.
type TaskFactory struct {
	deps *taskDeps
}

// NewTaskFactory creates a factory wiring the shared task collaborators.
func NewTaskFactory(
	tx store.Transactor,
	jobs store.JobStore,
	outcomes store.OutcomeStore,
	products store.ProductStore,
	cache ProgressCache,
	events EventDispatcher,
	config TaskFactoryConfig,
	logger *slog.Logger,
) *TaskFactory {
	if config.ImportBatchSize < 1 {
		config.ImportBatchSize = 500
	}
	if config.DeleteBatchSize < 1 {
		config.DeleteBatchSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskFactory{
		deps: &taskDeps{
			tx:              tx,
			jobs:            jobs,
			outcomes:        outcomes,
			products:        products,
			cache:           cache,
			events:          events,
			importBatchSize: config.ImportBatchSize,
			deleteBatchSize: config.DeleteBatchSize,
			logger:          logger,
			sleep:           sleepContext,
		},
	}
}

// NewCatalogImportTask builds a fresh import task for the given job.
func (f *TaskFactory) NewCatalogImportTask(jobID, tenantID uuid.UUID, filePath string) (Task, error) {
	payload := ImportPayload{JobID: jobID, TenantID: tenantID, FilePath: filePath}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import payload: %w", err)
	}

	return &CatalogImportTask{
		baseTask: baseTask{
			id:       uuid.New(),
			taskType: TaskTypeCatalogImport,
			payload:  data,
			status:   TaskStatusPending,
		},
		job:  payload,
		deps: f.deps,
	}, nil
}

// NewBulkDeleteTask builds a fresh bulk delete task over the given id
// snapshot.
func (f *TaskFactory) NewBulkDeleteTask(jobID, tenantID uuid.UUID, productIDs []uuid.UUID) (Task, error) {
	payload := BulkDeletePayload{JobID: jobID, TenantID: tenantID, ProductIDs: productIDs}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bulk delete payload: %w", err)
	}

	return &BulkDeleteTask{
		baseTask: baseTask{
			id:       uuid.New(),
			taskType: TaskTypeBulkDelete,
			payload:  data,
			status:   TaskStatusPending,
		},
		job:  payload,
		deps: f.deps,
	}, nil
}

// Rebuild reconstructs an executable task from a persisted record.
func (f *TaskFactory) Rebuild(record TaskRecord) (Task, error) {
	base := baseTask{
		id:       record.ID,
		taskType: record.Type,
		payload:  record.Payload,
		status:   record.Status,
	}

	switch record.Type {
	case TaskTypeCatalogImport:
		var payload ImportPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal import payload for task %s: %w", record.ID, err)
		}
		return &CatalogImportTask{baseTask: base, job: payload, deps: f.deps}, nil

	case TaskTypeBulkDelete:
		var payload BulkDeletePayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bulk delete payload for task %s: %w", record.ID, err)
		}
		return &BulkDeleteTask{baseTask: base, job: payload, deps: f.deps}, nil

	default:
		return nil, fmt.Errorf("unknown task type %q for task %s", record.Type, record.ID)
	}
}
