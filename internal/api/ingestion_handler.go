package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/api/shared"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/service"
	"github.com/phrazzld/catalog-api/internal/store"
)

// maxUploadBytes bounds the multipart form held in memory; larger
// uploads spill to temp files.
const maxUploadBytes = 32 << 20

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// IngestionHandler serves the upload, job, and bulk delete endpoints.
type IngestionHandler struct {
	service service.IngestionService
	logger  *slog.Logger
}

// NewIngestionHandler creates a new IngestionHandler.
func NewIngestionHandler(svc service.IngestionService, logger *slog.Logger) *IngestionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionHandler{
		service: svc,
		logger:  logger.With("component", "ingestion_handler"),
	}
}

// UploadCatalog handles POST /uploads. It accepts a multipart CSV file,
// validates the header synchronously, and returns 202 with the pending
// job. Row processing happens in the background.
func (h *IngestionHandler) UploadCatalog(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.GetTenantID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing tenant")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer func() { _ = file.Close() }()

	job, err := h.service.EnqueueImport(r.Context(), tenantID, header.Filename, file)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("upload accepted",
		"job_id", job.ID,
		"tenant_id", tenantID,
		"filename", header.Filename)
	shared.RespondWithJSON(w, r, http.StatusAccepted, UploadResponse{JobID: job.ID, Status: job.Status})
}

// BulkDeleteProducts handles DELETE /products. The matching product set
// is snapshotted now; deletion happens in the background.
func (h *IngestionHandler) BulkDeleteProducts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.GetTenantID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing tenant")
		return
	}

	var req BulkDeleteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
			return
		}
	}

	job, err := h.service.EnqueueBulkDelete(r.Context(), tenantID, store.ProductFilter{
		SKUPrefix: req.SKUPrefix,
		Active:    req.Active,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("bulk delete accepted",
		"job_id", job.ID,
		"tenant_id", tenantID,
		"matched_count", job.TotalRows)
	shared.RespondWithJSON(w, r, http.StatusAccepted, BulkDeleteResponse{
		JobID:        job.ID,
		Status:       job.Status,
		MatchedCount: job.TotalRows,
	})
}

// ListJobs handles GET /jobs with optional ?status= filtering.
func (h *IngestionHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var status *domain.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := parseJobStatus(raw)
		if !ok {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
			return
		}
		status = &parsed
	}

	page, limit := paginationParams(r)
	jobs, total, err := h.service.ListJobs(r.Context(), status, page, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobListResponse{
		Jobs:  jobs,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// GetJob handles GET /jobs/{id}. Counters come from the progress cache
// when it is fresher than the last committed batch.
func (h *IngestionHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	status, err := h.service.GetJobStatus(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// ListOutcomes handles GET /jobs/{id}/outcomes. ?problems_only=true
// restricts the listing to rejected and skipped rows.
func (h *IngestionHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	problemsOnly := r.URL.Query().Get("problems_only") == "true"
	page, limit := paginationParams(r)

	outcomes, total, err := h.service.ListRowOutcomes(r.Context(), jobID, problemsOnly, page, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, OutcomeListResponse{
		Outcomes: outcomes,
		Page:     page,
		Limit:    limit,
		Total:    total,
	})
}

// CancelJob handles POST /jobs/{id}/cancel. The running task notices at
// its next batch boundary; rows committed before then stay committed.
func (h *IngestionHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.service.CancelJob(r.Context(), jobID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("job cancellation requested", "job_id", jobID)
	w.WriteHeader(http.StatusNoContent)
}

func parseJobStatus(raw string) (domain.JobStatus, bool) {
	switch status := domain.JobStatus(raw); status {
	case domain.JobStatusPending,
		domain.JobStatusRunning,
		domain.JobStatusSucceeded,
		domain.JobStatusPartiallyFailed,
		domain.JobStatusFailed,
		domain.JobStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

func paginationParams(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageLimit

	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxPageLimit {
				limit = maxPageLimit
			}
		}
	}
	return page, limit
}
