package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/catalog-api/internal/api/middleware"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/service"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

func newWebhookRouter(svc service.WebhookService) http.Handler {
	handler := NewWebhookHandler(svc, nil)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Get("/webhooks/samples", handler.SamplePayloads)
	r.Group(func(r chi.Router) {
		r.Use(middleware.TenantMiddleware)
		r.Post("/webhooks", handler.CreateWebhook)
		r.Get("/webhooks", handler.ListWebhooks)
		r.Delete("/webhooks/{id}", handler.DeleteWebhook)
		r.Post("/webhooks/{id}/test", handler.TestWebhook)
	})
	return r
}

func TestCreateWebhook(t *testing.T) {
	t.Parallel()

	svc := &fakeWebhookService{}
	router := newWebhookRouter(svc)

	body, err := json.Marshal(CreateWebhookRequest{
		Name:       "orders",
		URL:        "https://example.com/hook",
		Secret:     "supersecret",
		EventTypes: []string{"product_upload_complete"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "orders", svc.createdName)
	assert.Equal(t, []domain.EventType{domain.EventProductUploadComplete}, svc.createdEvents)

	// The secret never appears in the response.
	assert.NotContains(t, rec.Body.String(), "supersecret")
}

func TestCreateWebhook_RejectsUnknownEventType(t *testing.T) {
	t.Parallel()

	router := newWebhookRouter(&fakeWebhookService{})

	body, err := json.Marshal(CreateWebhookRequest{
		Name:       "orders",
		URL:        "https://example.com/hook",
		Secret:     "supersecret",
		EventTypes: []string{"nonsense_event"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown event type")
}

func TestCreateWebhook_ValidatesPayload(t *testing.T) {
	t.Parallel()

	router := newWebhookRouter(&fakeWebhookService{})

	// Missing secret, invalid URL.
	body, err := json.Marshal(CreateWebhookRequest{
		Name:       "orders",
		URL:        "not a url",
		EventTypes: []string{"product_upload_complete"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWebhooks_EmptyIsJSONArray(t *testing.T) {
	t.Parallel()

	router := newWebhookRouter(&fakeWebhookService{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestDeleteWebhook(t *testing.T) {
	t.Parallel()

	webhookID := uuid.New()
	svc := &fakeWebhookService{}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/webhooks/"+webhookID.String(), nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, webhookID, svc.deletedID)
}

func TestDeleteWebhook_NotFound(t *testing.T) {
	t.Parallel()

	svc := &fakeWebhookService{err: service.ErrWebhookNotFound}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/webhooks/"+uuid.New().String(), nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestWebhook(t *testing.T) {
	t.Parallel()

	webhookID := uuid.New()
	svc := &fakeWebhookService{result: webhook.TestResult{
		Success:      true,
		HTTPStatus:   200,
		ResponseTime: 12,
	}}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+webhookID.String()+"/test", nil)
	req.Header.Set(middleware.TenantHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebhookTestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 200, resp.HTTPStatus)
	assert.Equal(t, webhookID, svc.testedID)
}

func TestSamplePayloads(t *testing.T) {
	t.Parallel()

	router := newWebhookRouter(&fakeWebhookService{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/samples", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var samples map[domain.EventType]webhook.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&samples))
	assert.Contains(t, samples, domain.EventProductUploadComplete)
	assert.Contains(t, samples, domain.EventBulkDeleteComplete)
	assert.Contains(t, samples, domain.EventTest)
}
