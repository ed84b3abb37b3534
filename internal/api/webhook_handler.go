package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/api/shared"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/service"
)

// WebhookHandler serves the webhook config endpoints.
type WebhookHandler struct {
	service service.WebhookService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(svc service.WebhookService, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		service: svc,
		logger:  logger.With("component", "webhook_handler"),
	}
}

// CreateWebhook handles POST /webhooks.
func (h *WebhookHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.GetTenantID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing tenant")
		return
	}

	var req CreateWebhookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid webhook config", err)
		return
	}

	eventTypes := make([]domain.EventType, 0, len(req.EventTypes))
	for _, raw := range req.EventTypes {
		eventType := domain.EventType(raw)
		if !domain.IsValidEventType(eventType) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown event type: "+raw)
			return
		}
		eventTypes = append(eventTypes, eventType)
	}

	cfg, err := h.service.CreateWebhook(r.Context(), tenantID, req.Name, req.URL, req.Secret, eventTypes)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("webhook created", "webhook_id", cfg.ID, "tenant_id", tenantID)
	shared.RespondWithJSON(w, r, http.StatusCreated, cfg)
}

// ListWebhooks handles GET /webhooks.
func (h *WebhookHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.GetTenantID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing tenant")
		return
	}

	configs, err := h.service.ListWebhooks(r.Context(), tenantID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if configs == nil {
		configs = []*domain.WebhookConfig{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, configs)
}

// DeleteWebhook handles DELETE /webhooks/{id}.
func (h *WebhookHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid webhook ID")
		return
	}

	if err := h.service.DeleteWebhook(r.Context(), webhookID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("webhook deleted", "webhook_id", webhookID)
	w.WriteHeader(http.StatusNoContent)
}

// TestWebhook handles POST /webhooks/{id}/test. The test delivery is
// synchronous and bypasses the retry loop.
func (h *WebhookHandler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid webhook ID")
		return
	}

	result, err := h.service.TestWebhook(r.Context(), webhookID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, WebhookTestResponse{
		Success:      result.Success,
		HTTPStatus:   result.HTTPStatus,
		ResponseTime: result.ResponseTime,
		Error:        result.Error,
	})
}

// SamplePayloads handles GET /webhooks/samples, returning one
// representative payload per event type for integration development.
func (h *WebhookHandler) SamplePayloads(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.SamplePayloads())
}
