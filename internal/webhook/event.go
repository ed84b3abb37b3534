// Package webhook dispatches signed domain events to tenant-configured
// endpoints with bounded retries and an append-only delivery audit
// trail. Delivery failures never propagate to the job that produced the
// event.
package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
)

// Event is a domain event to be delivered to subscribed endpoints.
type Event struct {
	ID         uuid.UUID        `json:"event_id"`
	Type       domain.EventType `json:"event_type"`
	TenantID   uuid.UUID        `json:"tenant_id"`
	JobID      uuid.UUID        `json:"job_id,omitempty"`
	OccurredAt time.Time        `json:"timestamp"`
	Data       map[string]any   `json:"data"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType domain.EventType, tenantID, jobID uuid.UUID, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		TenantID:   tenantID,
		JobID:      jobID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Marshal renders the payload bytes sent over the wire. The signature
// is computed over exactly these bytes.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return data, nil
}

// SamplePayload returns a representative payload for the given event
// type, used by the API layer for documentation and webhook test UIs.
func SamplePayload(eventType domain.EventType) Event {
	data := map[string]any{}
	switch eventType {
	case domain.EventProductUploadComplete:
		data["total_products"] = 500000
	case domain.EventBulkDeleteComplete:
		data["deleted_count"] = 1000000
	case domain.EventTest:
		data["message"] = "Webhook test successful!"
	}
	return NewEvent(eventType, uuid.Nil, uuid.Nil, data)
}
