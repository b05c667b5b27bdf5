package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for products.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, tenant_id, code, name, unit_price, tax_pct, stocked, created_at, updated_at`

// GetByRef resolves a normalized product reference. Numeric refs hit the id
// path; everything else falls back to the catalogue code. One read path,
// at most two queries.
func (r *Repository) GetByRef(ctx context.Context, tenantID int64, ref shared.ProductRef) (*Product, error) {
	if ref.ID != 0 {
		p, err := r.getByID(ctx, tenantID, ref.ID)
		if err == nil || !errors.Is(err, shared.ErrNotFound) {
			return p, err
		}
	}
	if ref.Code == "" && ref.ID == 0 {
		return nil, shared.ErrNotFound
	}
	return r.getByCode(ctx, tenantID, ref.String())
}

func (r *Repository) getByID(ctx context.Context, tenantID, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	return scanProduct(row)
}

func (r *Repository) getByCode(ctx context.Context, tenantID int64, code string) (*Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND code = $2`,
		tenantID, code)
	return scanProduct(row)
}

// List returns products for the tenant, optionally matching a name/code pattern.
func (r *Repository) List(ctx context.Context, tenantID int64, pattern string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1`
	args := []any{tenantID}
	if pattern != "" {
		query += ` AND (code ILIKE $2 OR name ILIKE $2)`
		args = append(args, "%"+pattern+"%")
	}
	query += fmt.Sprintf(` ORDER BY code LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.Name, &p.UnitPrice, &p.TaxPct, &p.Stocked, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
