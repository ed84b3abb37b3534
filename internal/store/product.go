package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
)

// ProductFilter narrows a bulk delete snapshot. Zero value matches all
// products for the tenant.
type ProductFilter struct {
	// SKUPrefix matches normalized SKUs beginning with the prefix.
	SKUPrefix string

	// Active filters on the active flag when non-nil.
	Active *bool
}

// ProductStore defines the interface for product persistence. SKU
// uniqueness per tenant is enforced by the schema; conflict handling is
// a modeled outcome in the row processor, so implementations surface
// unique violations as ErrSKUExists rather than masking them.
type ProductStore interface {
	// GetBySKU retrieves a product by normalized SKU within a tenant.
	// Returns ErrProductNotFound if no product matches.
	GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*domain.Product, error)

	// GetByID retrieves a product by its unique ID.
	// Returns ErrProductNotFound if the product does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// UpsertBatch inserts or replaces products keyed by (tenant, sku).
	// Reapplying a batch that was already committed is a no-op, which is
	// what makes batch replay after redelivery safe.
	//
	// IMPORTANT: run within the row batch transaction via WithTx.
	UpsertBatch(ctx context.Context, products []*domain.Product) error

	// SnapshotIDs captures the ids of products matching the filter at
	// call time. Bulk delete operates over this snapshot so products
	// created after enqueue are never deleted.
	SnapshotIDs(ctx context.Context, tenantID uuid.UUID, filter ProductFilter) ([]uuid.UUID, error)

	// DeleteByIDs removes the given products and returns how many rows
	// were actually deleted (already-deleted ids are not an error).
	DeleteByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)

	// WithTx returns a new ProductStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ProductStore
}
