package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/catalog-api/internal/service"
)

// MapErrorToStatusCode maps service errors to HTTP status codes. Errors
// without a mapping become 500s so internal failure modes are never
// inferred from status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidUpload):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrWebhookNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrJobFinished):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error. Raw error strings are never exposed to clients.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrInvalidUpload):
		// Upload validation messages are produced by our own header and
		// extension checks and are safe to surface.
		return err.Error()

	case errors.Is(err, service.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, service.ErrWebhookNotFound):
		return "Webhook not found"

	case errors.Is(err, service.ErrJobFinished):
		return "Job has already finished"

	default:
		return "An unexpected error occurred"
	}
}
