package counterparties

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for counterparties.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, tenant_id, role, name, email, phone, created_at, updated_at`

// Get loads one counterparty.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (*Counterparty, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM counterparties WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	return scan(row)
}

// List returns every counterparty for the tenant, optionally one role only.
func (r *Repository) List(ctx context.Context, tenantID int64, role Role) ([]Counterparty, error) {
	query := `SELECT ` + columns + ` FROM counterparties WHERE tenant_id = $1`
	args := []any{tenantID}
	if role != "" {
		query += ` AND role = $2`
		args = append(args, string(role))
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Counterparty
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*Counterparty, error) {
	var c Counterparty
	err := row.Scan(&c.ID, &c.TenantID, &c.Role, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
