package stockledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists stock movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert creates the movement for its source key or updates it in place.
// The unique index on (tenant_id, product_id, source_kind, source_id)
// guarantees at most one row per pair.
func (r *Repository) Upsert(ctx context.Context, m *Movement) error {
	var warehouseID pgtype.Int8
	if m.WarehouseID != 0 {
		warehouseID = pgtype.Int8{Int64: m.WarehouseID, Valid: true}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO stock_movements (
			tenant_id, product_id, warehouse_id, movement_type, quantity,
			moved_at, source_kind, source_id, code, note, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (tenant_id, product_id, source_kind, source_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			moved_at = EXCLUDED.moved_at,
			movement_type = EXCLUDED.movement_type,
			note = EXCLUDED.note,
			updated_at = NOW()
		RETURNING id`,
		m.TenantID, m.ProductID, warehouseID, m.Type, m.Quantity,
		m.Date, m.SourceKind, m.SourceID, m.Code, m.Note, m.CreatedBy,
	).Scan(&m.ID)
}

// DeleteBySourceAndProduct removes one product's movement for a source document.
func (r *Repository) DeleteBySourceAndProduct(ctx context.Context, tenantID int64, kind documents.Kind, sourceID, productID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM stock_movements
		WHERE tenant_id = $1 AND source_kind = $2 AND source_id = $3 AND product_id = $4`,
		tenantID, kind, sourceID, productID)
	return err
}

// DeleteBySource removes every movement produced by a source document.
func (r *Repository) DeleteBySource(ctx context.Context, tenantID int64, kind documents.Kind, sourceID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM stock_movements
		WHERE tenant_id = $1 AND source_kind = $2 AND source_id = $3`,
		tenantID, kind, sourceID)
	return err
}

// CountBySource counts movements produced by a source document.
func (r *Repository) CountBySource(ctx context.Context, tenantID int64, kind documents.Kind, sourceID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM stock_movements
		WHERE tenant_id = $1 AND source_kind = $2 AND source_id = $3`,
		tenantID, kind, sourceID).Scan(&count)
	return count, err
}

// ListFilter scopes movement listings.
type ListFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// List returns movements for the tenant, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64, filter ListFilter) ([]Movement, error) {
	query := `
		SELECT id, tenant_id, product_id, COALESCE(warehouse_id, 0), movement_type, quantity,
			moved_at, source_kind, source_id, code, note, created_by, created_at, updated_at
		FROM stock_movements
		WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		query += fmt.Sprintf(` AND product_id = $%d`, len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(` AND moved_at >= $%d`, len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(` AND moved_at <= $%d`, len(args))
	}
	query += ` ORDER BY moved_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var out []Movement
	for rows.Next() {
		if len(out) >= limit {
			break
		}
		var m Movement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.WarehouseID, &m.Type, &m.Quantity,
			&m.Date, &m.SourceKind, &m.SourceID, &m.Code, &m.Note, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetBySourceAndProduct loads one movement by its natural key.
func (r *Repository) GetBySourceAndProduct(ctx context.Context, tenantID int64, kind documents.Kind, sourceID, productID int64) (*Movement, error) {
	var m Movement
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, product_id, COALESCE(warehouse_id, 0), movement_type, quantity,
			moved_at, source_kind, source_id, code, note, created_by, created_at, updated_at
		FROM stock_movements
		WHERE tenant_id = $1 AND source_kind = $2 AND source_id = $3 AND product_id = $4`,
		tenantID, kind, sourceID, productID,
	).Scan(&m.ID, &m.TenantID, &m.ProductID, &m.WarehouseID, &m.Type, &m.Quantity,
		&m.Date, &m.SourceKind, &m.SourceID, &m.Code, &m.Note, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
