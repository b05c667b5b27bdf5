package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListFilter scopes payment listings.
type ListFilter struct {
	CounterpartyID int64
	InvoiceID      int64
	FromDate       time.Time
	ToDate         time.Time
	Pattern        string
	Limit          int
	Offset         int
}

// Create inserts the payment with its lines.
func (r *Repository) Create(ctx context.Context, p *Payment) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO payments (
				tenant_id, counterparty_id, number, pay_date, method, reference,
				is_on_account, advance_used, amount, created_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			p.TenantID, p.CounterpartyID, p.Number, p.Date, p.Method, p.Reference,
			p.IsOnAccount, p.AdvanceUsed, p.Amount, p.CreatedBy,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		return insertPaymentLines(ctx, tx, p)
	})
}

// Update rewrites the payment header and lines in place.
func (r *Repository) Update(ctx context.Context, p *Payment) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payments SET
				counterparty_id = $3, pay_date = $4, method = $5, reference = $6,
				is_on_account = $7, advance_used = $8, amount = $9, updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2`,
			p.TenantID, p.ID, p.CounterpartyID, p.Date, p.Method, p.Reference,
			p.IsOnAccount, p.AdvanceUsed, p.Amount,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM payment_lines WHERE payment_id = $1`, p.ID); err != nil {
			return err
		}
		return insertPaymentLines(ctx, tx, p)
	})
}

// UpdateLines rewrites the stored lines of several payments at once, used
// after a cumulative recomputation.
func (r *Repository) UpdateLines(ctx context.Context, payments []*Payment) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		for _, p := range payments {
			if _, err := tx.Exec(ctx, `DELETE FROM payment_lines WHERE payment_id = $1`, p.ID); err != nil {
				return err
			}
			if err := insertPaymentLines(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get loads one payment with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (*Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, counterparty_id, number, pay_date, method, reference,
			is_on_account, advance_used, amount, created_by, created_at, updated_at
		FROM payments
		WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns payments matching the filter, newest first, lines included.
func (r *Repository) List(ctx context.Context, tenantID int64, filter ListFilter) ([]*Payment, error) {
	query := `
		SELECT DISTINCT p.id, p.tenant_id, p.counterparty_id, p.number, p.pay_date, p.method, p.reference,
			p.is_on_account, p.advance_used, p.amount, p.created_by, p.created_at, p.updated_at
		FROM payments p`

	if filter.InvoiceID > 0 {
		query += ` JOIN payment_lines l ON l.payment_id = p.id`
	}
	query += ` WHERE p.tenant_id = $1`

	args := []any{tenantID}
	argNum := 2

	if filter.InvoiceID > 0 {
		query += fmt.Sprintf(" AND l.invoice_id = $%d", argNum)
		args = append(args, filter.InvoiceID)
		argNum++
	}
	if filter.CounterpartyID > 0 {
		query += fmt.Sprintf(" AND p.counterparty_id = $%d", argNum)
		args = append(args, filter.CounterpartyID)
		argNum++
	}
	if !filter.FromDate.IsZero() {
		query += fmt.Sprintf(" AND p.pay_date >= $%d", argNum)
		args = append(args, filter.FromDate)
		argNum++
	}
	if !filter.ToDate.IsZero() {
		query += fmt.Sprintf(" AND p.pay_date <= $%d", argNum)
		args = append(args, filter.ToDate)
		argNum++
	}
	if filter.Pattern != "" {
		query += fmt.Sprintf(" AND (p.number ILIKE $%d OR p.reference ILIKE $%d)", argNum, argNum)
		args = append(args, "%"+filter.Pattern+"%")
		argNum++
	}

	query += " ORDER BY p.pay_date DESC, p.id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range payments {
		if err := r.loadLines(ctx, p); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

// Delete removes the payment with its lines.
func (r *Repository) Delete(ctx context.Context, tenantID, id int64) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM payment_lines WHERE payment_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM payments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// RebindInvoice re-points every line of the tenant's payments from one
// invoice id to another, refreshing the denormalized number and total.
func (r *Repository) RebindInvoice(ctx context.Context, tenantID, oldInvoiceID, newInvoiceID int64, newNumber string, newTotal float64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_lines l SET invoice_id = $3, invoice_number = $4, invoice_total = $5
		FROM payments p
		WHERE l.payment_id = p.id AND p.tenant_id = $1 AND l.invoice_id = $2`,
		tenantID, oldInvoiceID, newInvoiceID, newNumber, newTotal)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- helpers ---

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func insertPaymentLines(ctx context.Context, tx pgx.Tx, p *Payment) error {
	for i := range p.Lines {
		l := &p.Lines[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO payment_lines (
				payment_id, invoice_id, invoice_number, invoice_total,
				amount, amount_paid_before, remaining_balance, on_account
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			p.ID, l.InvoiceID, l.InvoiceNumber, l.InvoiceTotal,
			l.Amount, l.AmountPaidBefore, l.RemainingBalance, l.OnAccount,
		).Scan(&l.ID)
		if err != nil {
			return err
		}
		l.PaymentID = p.ID
	}
	return nil
}

func (r *Repository) loadLines(ctx context.Context, p *Payment) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, invoice_number, invoice_total,
			amount, amount_paid_before, remaining_balance, on_account
		FROM payment_lines
		WHERE payment_id = $1
		ORDER BY id`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.InvoiceNumber, &l.InvoiceTotal,
			&l.Amount, &l.AmountPaidBefore, &l.RemainingBalance, &l.OnAccount); err != nil {
			return err
		}
		l.PaymentID = p.ID
		p.Lines = append(p.Lines, l)
	}
	return rows.Err()
}

func scanPayment(row interface{ Scan(dest ...any) error }) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.TenantID, &p.CounterpartyID, &p.Number, &p.Date, &p.Method, &p.Reference,
		&p.IsOnAccount, &p.AdvanceUsed, &p.Amount, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
