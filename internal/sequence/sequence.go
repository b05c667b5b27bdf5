// Package sequence implements the per-tenant numbering service used when a
// document number cannot be derived by incrementing an existing one.
package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Service hands out monotonically increasing numbers per (tenant, key).
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the sequence service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Next atomically increments and returns the formatted next value of the
// sequence, creating it on first use.
func (s *Service) Next(ctx context.Context, tenantID int64, key string) (string, error) {
	var value int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sequences (tenant_id, key, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = sequences.value + 1
		RETURNING value`,
		tenantID, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", key, err)
	}
	return fmt.Sprintf("%s-%06d", key, value), nil
}
