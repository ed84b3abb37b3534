package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/catalog-api/internal/api"
	apiMiddleware "github.com/phrazzld/catalog-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	ingestionHandler := api.NewIngestionHandler(app.ingestionService, app.logger)
	webhookHandler := api.NewWebhookHandler(app.webhookService, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Sample payloads need no tenant; they document the wire format.
		r.Get("/webhooks/samples", webhookHandler.SamplePayloads)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.TenantMiddleware)

			r.Post("/uploads", ingestionHandler.UploadCatalog)
			r.Delete("/products", ingestionHandler.BulkDeleteProducts)

			r.Get("/jobs", ingestionHandler.ListJobs)
			r.Get("/jobs/{id}", ingestionHandler.GetJob)
			r.Get("/jobs/{id}/outcomes", ingestionHandler.ListOutcomes)
			r.Post("/jobs/{id}/cancel", ingestionHandler.CancelJob)

			r.Post("/webhooks", webhookHandler.CreateWebhook)
			r.Get("/webhooks", webhookHandler.ListWebhooks)
			r.Delete("/webhooks/{id}", webhookHandler.DeleteWebhook)
			r.Post("/webhooks/{id}/test", webhookHandler.TestWebhook)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
