package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
)

// maxBackoff caps the delay between delivery attempts.
const maxBackoff = 60 * time.Second

// Dispatcher delivers events to every enabled, subscribed webhook
// config of a tenant. Each HTTP attempt is recorded in the audit trail;
// a delivery that exhausts its retries surfaces as an error the caller
// may note but must not treat as fatal for the originating job.
type Dispatcher struct {
	webhooks    store.WebhookStore
	client      *http.Client
	maxAttempts int
	logger      *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher with the given per-request timeout
// and retry ceiling.
func NewDispatcher(webhooks store.WebhookStore, timeout time.Duration, maxAttempts int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		webhooks:    webhooks,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "webhook_dispatcher"),
		sleep:       sleepContext,
	}
}

// Dispatch delivers the event to all subscribed configs. It returns the
// first exhausted-delivery error encountered, after attempting every
// config.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	log := d.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("tenant_id", event.TenantID.String()),
	)

	configs, err := d.webhooks.ListEnabledForEvent(ctx, event.TenantID, event.Type)
	if err != nil {
		return fmt.Errorf("failed to list webhook configs: %w", err)
	}
	if len(configs) == 0 {
		log.Debug("no webhook subscriptions for event")
		return nil
	}

	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	var firstErr error
	for _, cfg := range configs {
		if err := d.deliver(ctx, cfg, event.ID, payload); err != nil {
			log.Warn("webhook delivery exhausted retries",
				slog.String("webhook_id", cfg.ID.String()),
				slog.String("url", cfg.URL),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = fmt.Errorf("delivery to %q failed: %w", cfg.Name, err)
			}
			continue
		}
		log.Info("webhook delivered", slog.String("webhook_id", cfg.ID.String()))
	}

	return firstErr
}

// TestResult is the synchronous outcome of a manual test delivery.
type TestResult struct {
	Success      bool   `json:"success"`
	HTTPStatus   int    `json:"http_status,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
}

// Test sends a single test event to one config, bypassing the retry
// loop, and reports the outcome directly.
func (d *Dispatcher) Test(ctx context.Context, cfg *domain.WebhookConfig) (TestResult, error) {
	event := NewEvent(domain.EventTest, cfg.TenantID, uuid.Nil, map[string]any{
		"message": "Webhook test successful!",
	})

	payload, err := event.Marshal()
	if err != nil {
		return TestResult{}, err
	}

	start := time.Now()
	status, sendErr := d.send(ctx, cfg, payload)
	elapsed := time.Since(start).Milliseconds()

	d.recordAttempt(ctx, cfg.ID, event.ID, 1, status, sendErr)

	result := TestResult{
		Success:      sendErr == nil,
		HTTPStatus:   status,
		ResponseTime: elapsed,
	}
	if sendErr != nil {
		result.Error = sendErr.Error()
	}
	return result, nil
}

// deliver attempts delivery up to the retry ceiling, recording every
// attempt. Backoff between attempts doubles per attempt, capped.
func (d *Dispatcher) deliver(ctx context.Context, cfg *domain.WebhookConfig, eventID uuid.UUID, payload []byte) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		status, err := d.send(ctx, cfg, payload)
		d.recordAttempt(ctx, cfg.ID, eventID, attempt, status, err)

		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < d.maxAttempts {
			if err := d.sleep(ctx, backoffDelay(attempt)); err != nil {
				return fmt.Errorf("delivery aborted: %w", err)
			}
		}
	}
	return lastErr
}

// send performs one signed POST. Any response status outside 2xx is a
// failed attempt.
func (d *Dispatcher) send(ctx context.Context, cfg *domain.WebhookConfig, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(cfg.Secret, payload))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// recordAttempt writes the audit row. Audit failures are logged and
// swallowed so they cannot mask the delivery outcome.
func (d *Dispatcher) recordAttempt(ctx context.Context, webhookID, eventID uuid.UUID, attempt, status int, sendErr error) {
	record := &domain.WebhookDeliveryAttempt{
		ID:         uuid.New(),
		WebhookID:  webhookID,
		EventID:    eventID,
		Attempt:    attempt,
		Success:    sendErr == nil,
		HTTPStatus: status,
		CreatedAt:  time.Now().UTC(),
	}
	if sendErr != nil {
		record.Error = sendErr.Error()
	}

	if err := d.webhooks.RecordAttempt(ctx, record); err != nil {
		d.logger.Error("failed to record delivery attempt",
			slog.String("webhook_id", webhookID.String()),
			slog.String("error", err.Error()))
	}
}

// backoffDelay returns the wait before the next attempt: 2^attempt
// seconds, capped at maxBackoff.
func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
