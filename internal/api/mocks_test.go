package api

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/service"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// fakeIngestionService returns canned values and records call
// arguments.
type fakeIngestionService struct {
	job       *domain.IngestionJob
	jobStatus *service.JobStatus
	jobs      []*domain.IngestionJob
	outcomes  []*domain.RowOutcome
	err       error

	uploadedFilename string
	uploadedTenant   uuid.UUID
	deleteFilter     store.ProductFilter
	cancelledJobID   uuid.UUID
	listStatus       *domain.JobStatus
	problemsOnly     bool
}

func (f *fakeIngestionService) EnqueueImport(_ context.Context, tenantID uuid.UUID, filename string, _ io.Reader) (*domain.IngestionJob, error) {
	f.uploadedTenant = tenantID
	f.uploadedFilename = filename
	return f.job, f.err
}

func (f *fakeIngestionService) EnqueueBulkDelete(_ context.Context, _ uuid.UUID, filter store.ProductFilter) (*domain.IngestionJob, error) {
	f.deleteFilter = filter
	return f.job, f.err
}

func (f *fakeIngestionService) GetJobStatus(_ context.Context, _ uuid.UUID) (*service.JobStatus, error) {
	return f.jobStatus, f.err
}

func (f *fakeIngestionService) ListJobs(_ context.Context, status *domain.JobStatus, _, _ int) ([]*domain.IngestionJob, int, error) {
	f.listStatus = status
	return f.jobs, len(f.jobs), f.err
}

func (f *fakeIngestionService) ListRowOutcomes(_ context.Context, _ uuid.UUID, problemsOnly bool, _, _ int) ([]*domain.RowOutcome, int, error) {
	f.problemsOnly = problemsOnly
	return f.outcomes, len(f.outcomes), f.err
}

func (f *fakeIngestionService) CancelJob(_ context.Context, jobID uuid.UUID) error {
	f.cancelledJobID = jobID
	return f.err
}

type fakeWebhookService struct {
	cfg     *domain.WebhookConfig
	configs []*domain.WebhookConfig
	result  webhook.TestResult
	err     error

	createdName   string
	createdEvents []domain.EventType
	deletedID     uuid.UUID
	testedID      uuid.UUID
}

func (f *fakeWebhookService) CreateWebhook(_ context.Context, tenantID uuid.UUID, name, url, secret string, eventTypes []domain.EventType) (*domain.WebhookConfig, error) {
	f.createdName = name
	f.createdEvents = eventTypes
	if f.err != nil {
		return nil, f.err
	}
	if f.cfg != nil {
		return f.cfg, nil
	}
	return domain.NewWebhookConfig(tenantID, name, url, secret, eventTypes)
}

func (f *fakeWebhookService) ListWebhooks(_ context.Context, _ uuid.UUID) ([]*domain.WebhookConfig, error) {
	return f.configs, f.err
}

func (f *fakeWebhookService) DeleteWebhook(_ context.Context, id uuid.UUID) error {
	f.deletedID = id
	return f.err
}

func (f *fakeWebhookService) TestWebhook(_ context.Context, id uuid.UUID) (webhook.TestResult, error) {
	f.testedID = id
	return f.result, f.err
}

func (f *fakeWebhookService) SamplePayloads() map[domain.EventType]webhook.Event {
	samples := map[domain.EventType]webhook.Event{}
	for _, eventType := range domain.AllEventTypes() {
		samples[eventType] = webhook.SamplePayload(eventType)
	}
	samples[domain.EventTest] = webhook.SamplePayload(domain.EventTest)
	return samples
}
