package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/catalog-api/internal/domain"
	"github.com/phrazzld/catalog-api/internal/store"
)

// PostgresProductStore implements the store.ProductStore interface
// using PostgreSQL. SKU uniqueness per tenant is enforced by a unique
// index over (tenant_id, sku); SKUs are normalized before storage.
type PostgresProductStore struct {
	db store.DBTX
}

// NewPostgresProductStore creates a new PostgresProductStore.
func NewPostgresProductStore(db store.DBTX) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

// WithTx returns a new ProductStore that uses the provided transaction.
func (s *PostgresProductStore) WithTx(tx *sql.Tx) store.ProductStore {
	return &PostgresProductStore{db: tx}
}

const productColumns = `id, tenant_id, sku, name, COALESCE(description, ''), price_cents, active, attributes, created_at, updated_at`

// GetBySKU retrieves a product by normalized SKU within a tenant.
func (s *PostgresProductStore) GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND sku = $2`

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, tenantID, domain.NormalizeSKU(sku)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product by sku: %w", MapError(err))
	}

	return product, nil
}

// GetByID retrieves a product by its unique ID.
func (s *PostgresProductStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", MapError(err))
	}

	return product, nil
}

// UpsertBatch inserts or replaces products keyed by (tenant, sku).
// Reapplying an already-committed batch rewrites identical values, so
// replay after queue redelivery is a no-op.
func (s *PostgresProductStore) UpsertBatch(ctx context.Context, products []*domain.Product) error {
	query := `
		INSERT INTO products (id, tenant_id, sku, name, description, price_cents, active, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, sku) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price_cents = EXCLUDED.price_cents,
			active = EXCLUDED.active,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`

	for _, product := range products {
		if err := product.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		attrs, err := marshalAttributes(product.Attributes)
		if err != nil {
			return err
		}

		if _, err := s.db.ExecContext(ctx, query,
			product.ID,
			product.TenantID,
			product.SKU,
			product.Name,
			product.Description,
			product.PriceCents,
			product.Active,
			attrs,
			product.CreatedAt,
			product.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", product.SKU, MapError(err))
		}
	}

	return nil
}

// SnapshotIDs captures ids of products matching the filter at call time.
func (s *PostgresProductStore) SnapshotIDs(ctx context.Context, tenantID uuid.UUID, filter store.ProductFilter) ([]uuid.UUID, error) {
	query := `SELECT id FROM products WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.SKUPrefix != "" {
		args = append(args, domain.NormalizeSKU(filter.SKUPrefix)+"%")
		query += fmt.Sprintf(" AND sku LIKE $%d", len(args))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		query += fmt.Sprintf(" AND active = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot product ids: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product ids: %w", err)
	}

	return ids, nil
}

// DeleteByIDs removes the given products. Ids that no longer exist are
// not an error; the returned count reflects rows actually deleted.
func (s *PostgresProductStore) DeleteByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`DELETE FROM products WHERE tenant_id = $1 AND id IN (%s)`,
		strings.Join(placeholders, ", "),
	)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete products: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

func marshalAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal product attributes: %w", err)
	}
	return data, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		product domain.Product
		attrs   []byte
	)

	err := row.Scan(
		&product.ID,
		&product.TenantID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.PriceCents,
		&product.Active,
		&attrs,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attrs) > 0 {
		attributes := map[string]string{}
		if err := json.Unmarshal(attrs, &attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product attributes: %w", err)
		}
		if len(attributes) > 0 {
			product.Attributes = attributes
		}
	}

	return &product, nil
}
