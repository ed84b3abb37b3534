package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
)

// WebhookStore defines the interface for webhook config persistence and
// the delivery attempt audit trail.
type WebhookStore interface {
	// Upsert creates or replaces a webhook config by ID.
	Upsert(ctx context.Context, cfg *domain.WebhookConfig) error

	// GetByID retrieves a webhook config.
	// Returns ErrWebhookNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookConfig, error)

	// List returns all webhook configs for a tenant.
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.WebhookConfig, error)

	// ListEnabledForEvent returns the tenant's enabled configs subscribed
	// to the given event type. The dispatcher consumes these read-only.
	ListEnabledForEvent(ctx context.Context, tenantID uuid.UUID, eventType domain.EventType) ([]*domain.WebhookConfig, error)

	// Delete removes a webhook config.
	// Returns ErrWebhookNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// RecordAttempt appends one delivery attempt to the audit trail.
	RecordAttempt(ctx context.Context, attempt *domain.WebhookDeliveryAttempt) error

	// ListAttempts returns the delivery attempts for a (webhook, event)
	// pair in attempt order.
	ListAttempts(ctx context.Context, webhookID, eventID uuid.UUID) ([]*domain.WebhookDeliveryAttempt, error)

	// WithTx returns a new WebhookStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) WebhookStore
}
