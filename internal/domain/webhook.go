package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a webhook event.
type EventType string

// Known webhook event types.
const (
	EventProductUploadComplete EventType = "product_upload_complete"
	EventBulkDeleteComplete    EventType = "bulk_delete_complete"
	EventTest                  EventType = "test_event"
)

// AllEventTypes returns the event types a webhook config may subscribe
// to. The test event is excluded; it is only produced by the manual
// trigger.
func AllEventTypes() []EventType {
	return []EventType{EventProductUploadComplete, EventBulkDeleteComplete}
}

// IsValidEventType checks whether the given event type is subscribable.
func IsValidEventType(t EventType) bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Common validation errors for WebhookConfig
var (
	ErrEmptyWebhookID     = errors.New("webhook ID cannot be empty")
	ErrEmptyWebhookTenant = errors.New("webhook tenant ID cannot be empty")
	ErrEmptyWebhookName   = errors.New("webhook name cannot be empty")
	ErrEmptyWebhookURL    = errors.New("webhook URL cannot be empty")
	ErrEmptyWebhookSecret = errors.New("webhook secret cannot be empty")
	ErrNoEventTypes       = errors.New("webhook must subscribe to at least one event type")
)

// WebhookConfig is a tenant-owned endpoint registration. CRUD happens
// at the API boundary; the dispatcher consumes configs read-only.
type WebhookConfig struct {
	ID         uuid.UUID   `json:"id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	EventTypes []EventType `json:"event_types"`
	Secret     string      `json:"-"`
	Enabled    bool        `json:"enabled"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewWebhookConfig creates a validated, enabled webhook config.
func NewWebhookConfig(tenantID uuid.UUID, name, url, secret string, eventTypes []EventType) (*WebhookConfig, error) {
	now := time.Now().UTC()
	cfg := &WebhookConfig{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       name,
		URL:        url,
		EventTypes: eventTypes,
		Secret:     secret,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the WebhookConfig has valid data.
func (c *WebhookConfig) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyWebhookID
	}

	if c.TenantID == uuid.Nil {
		return ErrEmptyWebhookTenant
	}

	if c.Name == "" {
		return ErrEmptyWebhookName
	}

	if c.URL == "" {
		return ErrEmptyWebhookURL
	}

	if c.Secret == "" {
		return ErrEmptyWebhookSecret
	}

	if len(c.EventTypes) == 0 {
		return ErrNoEventTypes
	}

	for _, t := range c.EventTypes {
		if !IsValidEventType(t) {
			return ErrInvalidEventType
		}
	}

	return nil
}

// SubscribesTo reports whether the config is subscribed to the given
// event type.
func (c *WebhookConfig) SubscribesTo(t EventType) bool {
	for _, sub := range c.EventTypes {
		if sub == t {
			return true
		}
	}
	return false
}

// WebhookDeliveryAttempt is one row of the append-only delivery audit
// trail. The retry ceiling bounds how many of these exist per
// (webhook, event) pair.
type WebhookDeliveryAttempt struct {
	ID         uuid.UUID `json:"id"`
	WebhookID  uuid.UUID `json:"webhook_id"`
	EventID    uuid.UUID `json:"event_id"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
