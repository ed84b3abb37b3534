package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// WebhookTester sends a single synchronous test delivery.
type WebhookTester interface {
	Test(ctx context.Context, cfg *domain.WebhookConfig) (webhook.TestResult, error)
}

// WebhookService manages tenant webhook configs and manual test
// deliveries.
type WebhookService interface {
	// CreateWebhook registers a new enabled webhook config.
	CreateWebhook(ctx context.Context, tenantID uuid.UUID, name, url, secret string, eventTypes []domain.EventType) (*domain.WebhookConfig, error)

	// ListWebhooks returns the tenant's webhook configs.
	ListWebhooks(ctx context.Context, tenantID uuid.UUID) ([]*domain.WebhookConfig, error)

	// DeleteWebhook removes a webhook config.
	DeleteWebhook(ctx context.Context, id uuid.UUID) error

	// TestWebhook sends one test event to the config and returns the
	// synchronous outcome. The retry loop is bypassed.
	TestWebhook(ctx context.Context, id uuid.UUID) (webhook.TestResult, error)

	// SamplePayloads returns a representative payload per event type,
	// for documentation endpoints.
	SamplePayloads() map[domain.EventType]webhook.Event
}

type webhookServiceImpl struct {
	webhooks store.WebhookStore
	tester   WebhookTester
	logger   *slog.Logger
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(webhooks store.WebhookStore, tester WebhookTester, logger *slog.Logger) (WebhookService, error) {
	if webhooks == nil {
		return nil, &Error{Operation: "create_service", Message: "webhook store cannot be nil"}
	}
	if tester == nil {
		return nil, &Error{Operation: "create_service", Message: "webhook tester cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &webhookServiceImpl{
		webhooks: webhooks,
		tester:   tester,
		logger:   logger.With("component", "webhook_service"),
	}, nil
}

func (s *webhookServiceImpl) CreateWebhook(ctx context.Context, tenantID uuid.UUID, name, url, secret string, eventTypes []domain.EventType) (*domain.WebhookConfig, error) {
	cfg, err := domain.NewWebhookConfig(tenantID, name, url, secret, eventTypes)
	if err != nil {
		return nil, newError("create_webhook", "invalid webhook config", err)
	}

	if err := s.webhooks.Upsert(ctx, cfg); err != nil {
		return nil, newError("create_webhook", "failed to save webhook config", err)
	}

	s.logger.Info("webhook registered",
		"webhook_id", cfg.ID,
		"tenant_id", tenantID,
		"url", cfg.URL)
	return cfg, nil
}

func (s *webhookServiceImpl) ListWebhooks(ctx context.Context, tenantID uuid.UUID) ([]*domain.WebhookConfig, error) {
	configs, err := s.webhooks.List(ctx, tenantID)
	if err != nil {
		return nil, newError("list_webhooks", "failed to list webhook configs", err)
	}
	return configs, nil
}

func (s *webhookServiceImpl) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	if err := s.webhooks.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrWebhookNotFound) {
			return ErrWebhookNotFound
		}
		return newError("delete_webhook", "failed to delete webhook config", err)
	}

	s.logger.Info("webhook deleted", "webhook_id", id)
	return nil
}

func (s *webhookServiceImpl) TestWebhook(ctx context.Context, id uuid.UUID) (webhook.TestResult, error) {
	cfg, err := s.webhooks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrWebhookNotFound) {
			return webhook.TestResult{}, ErrWebhookNotFound
		}
		return webhook.TestResult{}, newError("test_webhook", "failed to load webhook config", err)
	}

	result, err := s.tester.Test(ctx, cfg)
	if err != nil {
		return webhook.TestResult{}, newError("test_webhook", "failed to send test event", err)
	}

	s.logger.Info("webhook test sent",
		"webhook_id", id,
		"success", result.Success,
		"http_status", result.HTTPStatus)
	return result, nil
}

func (s *webhookServiceImpl) SamplePayloads() map[domain.EventType]webhook.Event {
	samples := make(map[domain.EventType]webhook.Event, len(domain.AllEventTypes())+1)
	for _, eventType := range domain.AllEventTypes() {
		samples[eventType] = webhook.SamplePayload(eventType)
	}
	samples[domain.EventTest] = webhook.SamplePayload(domain.EventTest)
	return samples
}
