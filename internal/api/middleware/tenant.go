package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/catalog-api/internal/api/shared"
)

// TenantHeader carries the caller's tenant on every request.
const TenantHeader = "X-Tenant-ID"

// TenantMiddleware resolves the tenant from the request header and
// stores it on the context. Requests without a valid tenant UUID are
// rejected before reaching any handler.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Missing "+TenantHeader+" header")
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+TenantHeader+" header")
			return
		}

		ctx := shared.SetTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
