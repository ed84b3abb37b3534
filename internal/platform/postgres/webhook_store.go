package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
)

// PostgresWebhookStore implements the store.WebhookStore interface
// using PostgreSQL. Subscribed event types are stored as a JSONB array
// of strings.
type PostgresWebhookStore struct {
	db store.DBTX
}

// NewPostgresWebhookStore creates a new PostgresWebhookStore.
func NewPostgresWebhookStore(db store.DBTX) *PostgresWebhookStore {
	return &PostgresWebhookStore{db: db}
}

// WithTx returns a new WebhookStore that uses the provided transaction.
func (s *PostgresWebhookStore) WithTx(tx *sql.Tx) store.WebhookStore {
	return &PostgresWebhookStore{db: tx}
}

const webhookColumns = `id, tenant_id, name, url, event_types, secret, enabled, created_at, updated_at`

// Upsert creates or replaces a webhook config by ID.
func (s *PostgresWebhookStore) Upsert(ctx context.Context, cfg *domain.WebhookConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	eventTypes, err := json.Marshal(cfg.EventTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal event types: %w", err)
	}

	query := `
		INSERT INTO webhook_configs (id, tenant_id, name, url, event_types, secret, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			event_types = EXCLUDED.event_types,
			secret = EXCLUDED.secret,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.TenantID,
		cfg.Name,
		cfg.URL,
		eventTypes,
		cfg.Secret,
		cfg.Enabled,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert webhook config: %w", MapError(err))
	}

	return nil
}

// GetByID retrieves a webhook config.
func (s *PostgresWebhookStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookConfig, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_configs WHERE id = $1`

	cfg, err := scanWebhook(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to get webhook config: %w", MapError(err))
	}

	return cfg, nil
}

// List returns all webhook configs for a tenant.
func (s *PostgresWebhookStore) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.WebhookConfig, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_configs WHERE tenant_id = $1 ORDER BY created_at ASC`
	return s.queryConfigs(ctx, query, tenantID)
}

// ListEnabledForEvent returns the tenant's enabled configs subscribed to
// the given event type.
func (s *PostgresWebhookStore) ListEnabledForEvent(ctx context.Context, tenantID uuid.UUID, eventType domain.EventType) ([]*domain.WebhookConfig, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhook_configs
		WHERE tenant_id = $1
		  AND enabled
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(event_types) AS subscribed
			WHERE subscribed = $2
		  )
		ORDER BY created_at ASC
	`
	return s.queryConfigs(ctx, query, tenantID, string(eventType))
}

// Delete removes a webhook config.
func (s *PostgresWebhookStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhook_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook config: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, "webhook"); err != nil {
		return store.ErrWebhookNotFound
	}
	return nil
}

// RecordAttempt appends one delivery attempt to the audit trail.
func (s *PostgresWebhookStore) RecordAttempt(ctx context.Context, attempt *domain.WebhookDeliveryAttempt) error {
	query := `
		INSERT INTO webhook_delivery_attempts (id, webhook_id, event_id, attempt, success, http_status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var httpStatus any
	if attempt.HTTPStatus != 0 {
		httpStatus = attempt.HTTPStatus
	}

	if _, err := s.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.WebhookID,
		attempt.EventID,
		attempt.Attempt,
		attempt.Success,
		httpStatus,
		attempt.Error,
		attempt.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", MapError(err))
	}

	return nil
}

// ListAttempts returns delivery attempts for a (webhook, event) pair in
// attempt order.
func (s *PostgresWebhookStore) ListAttempts(ctx context.Context, webhookID, eventID uuid.UUID) ([]*domain.WebhookDeliveryAttempt, error) {
	query := `
		SELECT id, webhook_id, event_id, attempt, success, COALESCE(http_status, 0), COALESCE(error, ''), created_at
		FROM webhook_delivery_attempts
		WHERE webhook_id = $1 AND event_id = $2
		ORDER BY attempt ASC
	`

	rows, err := s.db.QueryContext(ctx, query, webhookID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var attempts []*domain.WebhookDeliveryAttempt
	for rows.Next() {
		var attempt domain.WebhookDeliveryAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.WebhookID,
			&attempt.EventID,
			&attempt.Attempt,
			&attempt.Success,
			&attempt.HTTPStatus,
			&attempt.Error,
			&attempt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, &attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery attempts: %w", err)
	}

	return attempts, nil
}

func (s *PostgresWebhookStore) queryConfigs(ctx context.Context, query string, args ...any) ([]*domain.WebhookConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook configs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var configs []*domain.WebhookConfig
	for rows.Next() {
		cfg, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook configs: %w", err)
	}

	return configs, nil
}

func scanWebhook(row rowScanner) (*domain.WebhookConfig, error) {
	var (
		cfg        domain.WebhookConfig
		eventTypes []byte
	)

	err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Name,
		&cfg.URL,
		&eventTypes,
		&cfg.Secret,
		&cfg.Enabled,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(eventTypes, &cfg.EventTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event types: %w", err)
	}

	return &cfg, nil
}
