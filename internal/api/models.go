package api

import (
	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/domain"
)

// Common request/response structures

// UploadResponse acknowledges an accepted upload. Processing happens in
// the background; poll the job for progress.
type UploadResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// BulkDeleteRequest defines the filter for a bulk delete. An empty
// filter deletes the tenant's entire catalog.
type BulkDeleteRequest struct {
	SKUPrefix string `json:"sku_prefix,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

// BulkDeleteResponse acknowledges an accepted bulk delete.
type BulkDeleteResponse struct {
	JobID        uuid.UUID        `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	MatchedCount int              `json:"matched_count"`
}

// JobListResponse is a paginated page of jobs.
type JobListResponse struct {
	Jobs  []*domain.IngestionJob `json:"jobs"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
	Total int                    `json:"total"`
}

// OutcomeListResponse is a paginated page of row outcomes.
type OutcomeListResponse struct {
	Outcomes []*domain.RowOutcome `json:"outcomes"`
	Page     int                  `json:"page"`
	Limit    int                  `json:"limit"`
	Total    int                  `json:"total"`
}

// CreateWebhookRequest defines the payload for registering a webhook.
type CreateWebhookRequest struct {
	Name       string   `json:"name"        validate:"required,min=1,max=100"`
	URL        string   `json:"url"         validate:"required,url"`
	Secret     string   `json:"secret"      validate:"required,min=8"`
	EventTypes []string `json:"event_types" validate:"required,min=1"`
}

// WebhookTestResponse reports the synchronous outcome of a manual test
// delivery.
type WebhookTestResponse struct {
	Success      bool   `json:"success"`
	HTTPStatus   int    `json:"http_status,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
}
