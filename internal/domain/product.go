package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Product
var (
	ErrEmptyProductID       = errors.New("product ID cannot be empty")
	ErrEmptyProductTenantID = errors.New("product tenant ID cannot be empty")
	ErrEmptyProductSKU      = errors.New("product SKU cannot be empty")
	ErrEmptyProductName     = errors.New("product name cannot be empty")
	ErrNegativeProductPrice = errors.New("product price cannot be negative")
)

// Product is one catalog entry. SKU is unique within a tenant; the
// uniqueness conflict is resolved by the row processor's explicit
// pre-read decision, not by catching the storage layer's constraint
// failure.
type Product struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	SKU         string            `json:"sku"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	PriceCents  int64             `json:"price_cents"`
	Active      bool              `json:"active"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewProduct creates a new Product with a normalized (lower-cased,
// trimmed) SKU. Returns an error if validation fails.
func NewProduct(tenantID uuid.UUID, sku, name string) (*Product, error) {
	now := time.Now().UTC()
	p := &Product{
		ID:        uuid.New(),
		TenantID:  tenantID,
		SKU:       NormalizeSKU(sku),
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Validate checks if the Product has valid data.
func (p *Product) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyProductID
	}

	if p.TenantID == uuid.Nil {
		return ErrEmptyProductTenantID
	}

	if p.SKU == "" {
		return ErrEmptyProductSKU
	}

	if p.Name == "" {
		return ErrEmptyProductName
	}

	if p.PriceCents < 0 {
		return ErrNegativeProductPrice
	}

	return nil
}

// Touch stamps the UpdatedAt field. Called after a merge so the stored
// version reflects the override.
func (p *Product) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// NormalizeSKU lower-cases and trims a SKU so the per-tenant uniqueness
// comparison is case-insensitive.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}
