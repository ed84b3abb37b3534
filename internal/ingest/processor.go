package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
)

// Columns with dedicated product fields. Anything else in a row lands
// in the product's attribute map.
const (
	columnName        = "name"
	columnSKU         = "sku"
	columnDescription = "description"
	columnPrice       = "price"
	columnActive      = "active"
	columnOverride    = "override"
)

// SKU returns the row's normalized SKU, or "" when the row has none.
// Callers use it to look up the existing product before calling Process.
func SKU(row Row) string {
	return domain.NormalizeSKU(row.Values[columnSKU])
}

// Decision is the outcome of processing one row against the current
// product snapshot for its SKU. Product is populated for created and
// updated decisions and nil otherwise.
type Decision struct {
	Outcome domain.OutcomeType
	Reason  string
	Product *domain.Product
}

// Process maps one parsed row plus the existing product with the same
// SKU (nil when none) to a decision. It is a pure function: the
// existing product is never mutated, and no storage is touched. The
// caller applies decisions in row order and refreshes its lookup after
// each mutation, which is how two rows with the same SKU in one file
// resolve deterministically.
func Process(tenantID uuid.UUID, row Row, existing *domain.Product) Decision {
	sku := domain.NormalizeSKU(row.Values[columnSKU])
	if sku == "" {
		return rejected(domain.ReasonMissingSKU)
	}

	name := strings.TrimSpace(row.Values[columnName])
	if name == "" {
		return rejected(domain.ReasonMissingName)
	}

	// Attribute validation applies regardless of whether the SKU is new.
	priceCents, hasPrice, reason := parsePrice(row.Values[columnPrice])
	if reason != "" {
		return rejected(reason)
	}

	if existing == nil {
		product, err := buildProduct(tenantID, sku, name, row, priceCents, hasPrice)
		if err != nil {
			return rejected(err.Error())
		}
		return Decision{Outcome: domain.OutcomeCreated, Product: product}
	}

	if !isTruthy(row.Values[columnOverride]) {
		return Decision{Outcome: domain.OutcomeSkippedDuplicate, Reason: domain.ReasonSKUExists}
	}

	merged := mergeProduct(existing, name, row, priceCents, hasPrice)
	return Decision{Outcome: domain.OutcomeUpdated, Product: merged}
}

func rejected(reason string) Decision {
	return Decision{Outcome: domain.OutcomeRejected, Reason: reason}
}

// buildProduct constructs a new product from the row. A constructor
// error becomes a row rejection, never a job failure.
func buildProduct(tenantID uuid.UUID, sku, name string, row Row, priceCents int64, hasPrice bool) (*domain.Product, error) {
	product, err := domain.NewProduct(tenantID, sku, name)
	if err != nil {
		return nil, err
	}
	product.Description = strings.TrimSpace(row.Values[columnDescription])
	if hasPrice {
		product.PriceCents = priceCents
	}
	if raw := strings.TrimSpace(row.Values[columnActive]); raw != "" {
		product.Active = isTruthy(raw)
	}
	product.Attributes = extraAttributes(row)
	return product, nil
}

// mergeProduct applies the override merge: row fields win field by
// field, absent or blank row fields keep the existing value. The
// existing product is copied, never mutated.
func mergeProduct(existing *domain.Product, name string, row Row, priceCents int64, hasPrice bool) *domain.Product {
	merged := *existing
	merged.Name = name

	if desc := strings.TrimSpace(row.Values[columnDescription]); desc != "" {
		merged.Description = desc
	}
	if hasPrice {
		merged.PriceCents = priceCents
	}
	if raw := strings.TrimSpace(row.Values[columnActive]); raw != "" {
		merged.Active = isTruthy(raw)
	}

	if extras := extraAttributes(row); extras != nil {
		attrs := make(map[string]string, len(existing.Attributes)+len(extras))
		for k, v := range existing.Attributes {
			attrs[k] = v
		}
		for k, v := range extras {
			attrs[k] = v
		}
		merged.Attributes = attrs
	} else if existing.Attributes != nil {
		attrs := make(map[string]string, len(existing.Attributes))
		for k, v := range existing.Attributes {
			attrs[k] = v
		}
		merged.Attributes = attrs
	}

	merged.Touch()
	return &merged
}

// extraAttributes collects non-blank values from columns without
// dedicated product fields. Returns nil when there are none.
func extraAttributes(row Row) map[string]string {
	var attrs map[string]string
	for col, val := range row.Values {
		switch col {
		case columnName, columnSKU, columnDescription, columnPrice, columnActive, columnOverride:
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[col] = val
	}
	return attrs
}

// maxPriceValue bounds value*100 away from int64 overflow. Prices at or
// above it are rejected per-row like any other malformed value.
const maxPriceValue = float64(math.MaxInt64) / 100

// parsePrice converts a price column value to cents. A blank value
// means the row does not carry a price. Malformed, negative, or
// overflowing values produce a rejection reason.
func parsePrice(raw string) (cents int64, present bool, reason string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, ""
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, domain.ReasonInvalidPrice
	}

	if value < 0 {
		return 0, false, domain.ReasonNegativePrice
	}

	if value >= maxPriceValue {
		return 0, false, domain.ReasonInvalidPrice
	}

	return int64(math.Round(value * 100)), true, ""
}

// isTruthy interprets the override/active column values. Anything not
// recognized is false.
func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
