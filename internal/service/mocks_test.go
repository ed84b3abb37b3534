package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/platform/rediscache"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/task"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.IngestionJob

	createErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[uuid.UUID]*domain.IngestionJob{}}
}

func (f *fakeJobStore) Create(_ context.Context, job *domain.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) List(_ context.Context, status *domain.JobStatus, _, _ int) ([]*domain.IngestionJob, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.IngestionJob
	for _, job := range f.jobs {
		if status == nil || job.Status == *status {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (f *fakeJobStore) MarkRunning(_ context.Context, id uuid.UUID, totalRows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return store.ErrTerminalStatus
	}
	job.Status = domain.JobStatusRunning
	job.TotalRows = totalRows
	return nil
}

func (f *fakeJobStore) UpdateProgress(_ context.Context, id uuid.UUID, processedRows, failedRows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.ProcessedRows = processedRows
		job.FailedRows = failedRows
	}
	return nil
}

func (f *fakeJobStore) TransitionToTerminal(_ context.Context, id uuid.UUID, status domain.JobStatus, errorSummary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return store.ErrTerminalStatus
	}
	now := time.Now().UTC()
	job.Status = status
	if errorSummary != "" {
		job.ErrorSummary = errorSummary
	}
	job.CompletedAt = &now
	return nil
}

func (f *fakeJobStore) AppendErrorSummary(_ context.Context, id uuid.UUID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		if job.ErrorSummary == "" {
			job.ErrorSummary = note
		} else {
			job.ErrorSummary += "; " + note
		}
	}
	return nil
}

func (f *fakeJobStore) WithTx(_ *sql.Tx) store.JobStore { return f }

type fakeOutcomeStore struct {
	outcomes []*domain.RowOutcome
}

func (f *fakeOutcomeStore) InsertBatch(_ context.Context, outcomes []*domain.RowOutcome) (int, error) {
	f.outcomes = append(f.outcomes, outcomes...)
	return len(outcomes), nil
}

func (f *fakeOutcomeStore) MaxRecordedOrdinal(_ context.Context, _ uuid.UUID) (int, error) {
	return len(f.outcomes), nil
}

func (f *fakeOutcomeStore) CountByJob(_ context.Context, _ uuid.UUID) (store.OutcomeCounts, error) {
	return store.OutcomeCounts{Total: len(f.outcomes)}, nil
}

func (f *fakeOutcomeStore) ListByJob(_ context.Context, jobID uuid.UUID, problemsOnly bool, _, _ int) ([]*domain.RowOutcome, int, error) {
	var out []*domain.RowOutcome
	for _, o := range f.outcomes {
		if o.JobID != jobID {
			continue
		}
		if problemsOnly && o.Outcome != domain.OutcomeRejected && o.Outcome != domain.OutcomeSkippedDuplicate {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (f *fakeOutcomeStore) WithTx(_ *sql.Tx) store.OutcomeStore { return f }

type fakeProductStore struct {
	snapshot    []uuid.UUID
	snapshotErr error
}

func (f *fakeProductStore) GetBySKU(_ context.Context, _ uuid.UUID, _ string) (*domain.Product, error) {
	return nil, store.ErrProductNotFound
}

func (f *fakeProductStore) GetByID(_ context.Context, _ uuid.UUID) (*domain.Product, error) {
	return nil, store.ErrProductNotFound
}

func (f *fakeProductStore) UpsertBatch(_ context.Context, _ []*domain.Product) error { return nil }

func (f *fakeProductStore) SnapshotIDs(_ context.Context, _ uuid.UUID, _ store.ProductFilter) ([]uuid.UUID, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeProductStore) DeleteByIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (int, error) {
	return len(ids), nil
}

func (f *fakeProductStore) WithTx(_ *sql.Tx) store.ProductStore { return f }

type fakeRunner struct {
	mu        sync.Mutex
	submitted []task.Task
	err       error
}

func (f *fakeRunner) Submit(_ context.Context, t task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, t)
	return nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// fakeBuilder returns inert tasks capturing the build arguments.
type fakeBuilder struct {
	imports []builtImport
	deletes []builtDelete
}

type builtImport struct {
	jobID    uuid.UUID
	tenantID uuid.UUID
	filePath string
}

type builtDelete struct {
	jobID      uuid.UUID
	tenantID   uuid.UUID
	productIDs []uuid.UUID
}

type inertTask struct{ id uuid.UUID }

func (t *inertTask) ID() uuid.UUID                { return t.id }
func (t *inertTask) Type() string                 { return "inert" }
func (t *inertTask) Payload() []byte              { return []byte(`{}`) }
func (t *inertTask) Status() task.TaskStatus      { return task.TaskStatusPending }
func (t *inertTask) Execute(context.Context) error { return nil }

func (f *fakeBuilder) NewCatalogImportTask(jobID, tenantID uuid.UUID, filePath string) (task.Task, error) {
	f.imports = append(f.imports, builtImport{jobID, tenantID, filePath})
	return &inertTask{id: uuid.New()}, nil
}

func (f *fakeBuilder) NewBulkDeleteTask(jobID, tenantID uuid.UUID, productIDs []uuid.UUID) (task.Task, error) {
	f.deletes = append(f.deletes, builtDelete{jobID, tenantID, productIDs})
	return &inertTask{id: uuid.New()}, nil
}

type fakeCache struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*rediscache.ProgressSnapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: map[uuid.UUID]*rediscache.ProgressSnapshot{}}
}

func (f *fakeCache) Set(_ context.Context, jobID uuid.UUID, status domain.JobStatus, processed, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[jobID] = &rediscache.ProgressSnapshot{
		Status:    string(status),
		Processed: processed,
		Total:     total,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (f *fakeCache) Get(_ context.Context, jobID uuid.UUID) (*rediscache.ProgressSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[jobID], nil
}

type fakeWebhookStore struct {
	mu      sync.Mutex
	configs map[uuid.UUID]*domain.WebhookConfig
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{configs: map[uuid.UUID]*domain.WebhookConfig{}}
}

func (f *fakeWebhookStore) Upsert(_ context.Context, cfg *domain.WebhookConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *cfg
	f.configs[cfg.ID] = &copied
	return nil
}

func (f *fakeWebhookStore) GetByID(_ context.Context, id uuid.UUID) (*domain.WebhookConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[id]
	if !ok {
		return nil, store.ErrWebhookNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (f *fakeWebhookStore) List(_ context.Context, tenantID uuid.UUID) ([]*domain.WebhookConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.WebhookConfig
	for _, cfg := range f.configs {
		if cfg.TenantID == tenantID {
			copied := *cfg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeWebhookStore) ListEnabledForEvent(_ context.Context, tenantID uuid.UUID, eventType domain.EventType) ([]*domain.WebhookConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.WebhookConfig
	for _, cfg := range f.configs {
		if cfg.TenantID == tenantID && cfg.Enabled && cfg.SubscribesTo(eventType) {
			copied := *cfg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeWebhookStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[id]; !ok {
		return store.ErrWebhookNotFound
	}
	delete(f.configs, id)
	return nil
}

func (f *fakeWebhookStore) RecordAttempt(_ context.Context, _ *domain.WebhookDeliveryAttempt) error {
	return nil
}

func (f *fakeWebhookStore) ListAttempts(_ context.Context, _, _ uuid.UUID) ([]*domain.WebhookDeliveryAttempt, error) {
	return nil, nil
}

func (f *fakeWebhookStore) WithTx(_ *sql.Tx) store.WebhookStore { return f }

type fakeTester struct {
	result webhook.TestResult
	err    error
	tested []uuid.UUID
}

func (f *fakeTester) Test(_ context.Context, cfg *domain.WebhookConfig) (webhook.TestResult, error) {
	f.tested = append(f.tested, cfg.ID)
	return f.result, f.err
}
