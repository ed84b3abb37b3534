package task

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// fakeTransactor runs the function without a real transaction. Tests
// simulate mid-run crashes by letting succeedFirst commits through and
// then failing the next failures commits.
type fakeTransactor struct {
	mu           sync.Mutex
	succeedFirst int
	failures     int
	commits      int
}

func (f *fakeTransactor) Transact(ctx context.Context, fn store.TxFn) error {
	f.mu.Lock()
	if f.succeedFirst > 0 {
		f.succeedFirst--
	} else if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("simulated commit failure")
	}
	f.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		return err
	}
	f.mu.Lock()
	f.commits++
	f.mu.Unlock()
	return nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.IngestionJob

	// onUpdateProgress, when set, runs after each progress update. Used
	// to cancel a job mid-run from a test.
	onUpdateProgress func()
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[uuid.UUID]*domain.IngestionJob{}}
}

func (f *fakeJobStore) put(job *domain.IngestionJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
}

func (f *fakeJobStore) Create(_ context.Context, job *domain.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; ok {
		return store.ErrDuplicate
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
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeJobStore) UpdateProgress(_ context.Context, id uuid.UUID, processedRows, failedRows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status.IsTerminal() {
		// No-op, matching the guarded UPDATE: a late write from an
		// expired lease never touches finalized counters.
		return nil
	}
	job.ProcessedRows = processedRows
	job.FailedRows = failedRows
	job.UpdatedAt = time.Now().UTC()
	hook := f.onUpdateProgress
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
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
	job.UpdatedAt = now
	job.CompletedAt = &now
	return nil
}

func (f *fakeJobStore) AppendErrorSummary(_ context.Context, id uuid.UUID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.ErrorSummary == "" {
		job.ErrorSummary = note
	} else {
		job.ErrorSummary = job.ErrorSummary + "; " + note
	}
	return nil
}

func (f *fakeJobStore) WithTx(_ *sql.Tx) store.JobStore { return f }

type fakeOutcomeStore struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]map[int]*domain.RowOutcome
}

func newFakeOutcomeStore() *fakeOutcomeStore {
	return &fakeOutcomeStore{outcomes: map[uuid.UUID]map[int]*domain.RowOutcome{}}
}

func (f *fakeOutcomeStore) InsertBatch(_ context.Context, outcomes []*domain.RowOutcome) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inserted := 0
	for _, o := range outcomes {
		if err := o.Validate(); err != nil {
			return inserted, err
		}
		byJob, ok := f.outcomes[o.JobID]
		if !ok {
			byJob = map[int]*domain.RowOutcome{}
			f.outcomes[o.JobID] = byJob
		}
		if _, exists := byJob[o.RowOrdinal]; exists {
			continue
		}
		copied := *o
		byJob[o.RowOrdinal] = &copied
		inserted++
	}
	return inserted, nil
}

func (f *fakeOutcomeStore) MaxRecordedOrdinal(_ context.Context, jobID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for ordinal := range f.outcomes[jobID] {
		if ordinal > max {
			max = ordinal
		}
	}
	return max, nil
}

func (f *fakeOutcomeStore) CountByJob(_ context.Context, jobID uuid.UUID) (store.OutcomeCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var counts store.OutcomeCounts
	for _, o := range f.outcomes[jobID] {
		counts.Total++
		switch o.Outcome {
		case domain.OutcomeCreated:
			counts.Created++
		case domain.OutcomeUpdated:
			counts.Updated++
		case domain.OutcomeSkippedDuplicate:
			counts.Skipped++
		case domain.OutcomeRejected:
			counts.Failed++
		}
	}
	return counts, nil
}

func (f *fakeOutcomeStore) ListByJob(_ context.Context, jobID uuid.UUID, problemsOnly bool, _, _ int) ([]*domain.RowOutcome, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.RowOutcome
	for _, o := range f.outcomes[jobID] {
		if problemsOnly && o.Outcome != domain.OutcomeRejected && o.Outcome != domain.OutcomeSkippedDuplicate {
			continue
		}
		copied := *o
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (f *fakeOutcomeStore) WithTx(_ *sql.Tx) store.OutcomeStore { return f }

func (f *fakeOutcomeStore) get(jobID uuid.UUID, ordinal int) *domain.RowOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.outcomes[jobID][ordinal]
	if !ok {
		return nil
	}
	copied := *o
	return &copied
}

type productKey struct {
	tenantID uuid.UUID
	sku      string
}

type fakeProductStore struct {
	mu       sync.Mutex
	products map[productKey]*domain.Product
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{products: map[productKey]*domain.Product{}}
}

func (f *fakeProductStore) GetBySKU(_ context.Context, tenantID uuid.UUID, sku string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productKey{tenantID, domain.NormalizeSKU(sku)}]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProductStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, store.ErrProductNotFound
}

func (f *fakeProductStore) UpsertBatch(_ context.Context, products []*domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return err
		}
		copied := *p
		f.products[productKey{p.TenantID, p.SKU}] = &copied
	}
	return nil
}

func (f *fakeProductStore) SnapshotIDs(_ context.Context, tenantID uuid.UUID, _ store.ProductFilter) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for key, p := range f.products {
		if key.tenantID == tenantID {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (f *fakeProductStore) DeleteByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		for key, p := range f.products {
			if key.tenantID == tenantID && p.ID == id {
				delete(f.products, key)
				deleted++
				break
			}
		}
	}
	return deleted, nil
}

func (f *fakeProductStore) WithTx(_ *sql.Tx) store.ProductStore { return f }

func (f *fakeProductStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.products)
}

// fakeProgressCache records every snapshot written.
type fakeProgressCache struct {
	mu        sync.Mutex
	snapshots []cacheSnapshot
}

type cacheSnapshot struct {
	jobID     uuid.UUID
	status    domain.JobStatus
	processed int
	total     int
}

func (f *fakeProgressCache) Set(_ context.Context, jobID uuid.UUID, status domain.JobStatus, processed, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, cacheSnapshot{jobID, status, processed, total})
	return nil
}

func (f *fakeProgressCache) last() (cacheSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return cacheSnapshot{}, false
	}
	return f.snapshots[len(f.snapshots)-1], true
}

// fakeDispatcher records dispatched events; err makes every dispatch
// report exhausted delivery.
type fakeDispatcher struct {
	mu     sync.Mutex
	events []webhook.Event
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, event webhook.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeDispatcher) dispatched() []webhook.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webhook.Event, len(f.events))
	copy(out, f.events)
	return out
}

// fakeTaskStore is an in-memory task ledger for runner tests.
type fakeTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*TaskRecord
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{records: map[uuid.UUID]*TaskRecord{}}
}

func (f *fakeTaskStore) SaveTask(_ context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	f.records[t.ID()] = &TaskRecord{
		ID:        t.ID(),
		Type:      t.Type(),
		Payload:   t.Payload(),
		Status:    t.Status(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (f *fakeTaskStore) UpdateTaskStatus(_ context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[taskID]
	if !ok {
		return nil
	}
	record.Status = status
	record.ErrorMessage = errorMsg
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeTaskStore) GetPendingTasks(_ context.Context) ([]TaskRecord, error) {
	return f.byStatus(TaskStatusPending, 0), nil
}

func (f *fakeTaskStore) GetProcessingTasks(_ context.Context, olderThan time.Duration) ([]TaskRecord, error) {
	return f.byStatus(TaskStatusProcessing, olderThan), nil
}

func (f *fakeTaskStore) byStatus(status TaskStatus, olderThan time.Duration) []TaskRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []TaskRecord
	for _, record := range f.records {
		if record.Status != status {
			continue
		}
		if olderThan > 0 && !record.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *record)
	}
	return out
}

func (f *fakeTaskStore) WithTx(_ *sql.Tx) TaskStore { return f }

func (f *fakeTaskStore) statusOf(taskID uuid.UUID) (TaskStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[taskID]
	if !ok {
		return "", false
	}
	return record.Status, true
}

func (f *fakeTaskStore) errorMessageOf(taskID uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[taskID]
	if !ok {
		return ""
	}
	return record.ErrorMessage
}

func (f *fakeTaskStore) backdate(taskID uuid.UUID, age time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[taskID]; ok {
		record.UpdatedAt = time.Now().UTC().Add(-age)
	}
}

// mockTask executes a supplied function, for runner tests.
type mockTask struct {
	baseTask
	executeFn func(ctx context.Context) error
}

func newMockTask(executeFn func(ctx context.Context) error) *mockTask {
	return &mockTask{
		baseTask: baseTask{
			id:       uuid.New(),
			taskType: "mock",
			payload:  []byte(`{}`),
			status:   TaskStatusPending,
		},
		executeFn: executeFn,
	}
}

func (t *mockTask) Execute(ctx context.Context) error {
	if t.executeFn != nil {
		return t.executeFn(ctx)
	}
	return nil
}

// mockFactory rebuilds mock tasks with a shared execute function.
type mockFactory struct {
	executeFn func(ctx context.Context) error
	rebuildErr error
}

func (f *mockFactory) Rebuild(record TaskRecord) (Task, error) {
	if f.rebuildErr != nil {
		return nil, f.rebuildErr
	}
	return &mockTask{
		baseTask: baseTask{
			id:       record.ID,
			taskType: record.Type,
			payload:  record.Payload,
			status:   record.Status,
		},
		executeFn: f.executeFn,
	}, nil
}
