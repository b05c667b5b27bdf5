package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for commercial documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListFilter scopes document listings.
type ListFilter struct {
	Kind           Kind
	Status         Status
	CounterpartyID int64
	FromDate       time.Time
	ToDate         time.Time
	NumberPattern  string
	Limit          int
	Offset         int
}

// Create inserts the document with its lines and links. A number collision
// within (tenant, kind) maps to shared.ErrDuplicateNumber.
func (r *Repository) Create(ctx context.Context, doc *Document) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO documents (
				tenant_id, kind, number, status, doc_date, counterparty_id,
				global_discount_pct, levy_enabled, levy_rate_pct, stamp_duty,
				base_ht, tax_amount, levy_amount, grand_total,
				payment_terms, notes, created_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
			RETURNING id, created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			doc.TenantID, doc.Kind, doc.Number, doc.Status, doc.Date, doc.CounterpartyID,
			doc.GlobalDiscountPct, doc.LevyEnabled, doc.LevyRatePct, doc.Totals.StampDuty,
			doc.Totals.BaseHT, doc.Totals.TaxAmount, doc.Totals.LevyAmount, doc.Totals.GrandTotal,
			doc.PaymentTerms, doc.Notes, doc.CreatedBy,
		).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return mapUniqueViolation(err)
		}

		if err := insertLines(ctx, tx, doc.ID, doc.Lines); err != nil {
			return err
		}
		return insertLinks(ctx, tx, doc.ID, doc.Links)
	})
}

// Update rewrites the document header, lines and links in place.
func (r *Repository) Update(ctx context.Context, doc *Document) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE documents SET
				doc_date = $3, counterparty_id = $4,
				global_discount_pct = $5, levy_enabled = $6, levy_rate_pct = $7, stamp_duty = $8,
				base_ht = $9, tax_amount = $10, levy_amount = $11, grand_total = $12,
				payment_terms = $13, notes = $14, updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2`

		tag, err := tx.Exec(ctx, query,
			doc.TenantID, doc.ID, doc.Date, doc.CounterpartyID,
			doc.GlobalDiscountPct, doc.LevyEnabled, doc.LevyRatePct, doc.Totals.StampDuty,
			doc.Totals.BaseHT, doc.Totals.TaxAmount, doc.Totals.LevyAmount, doc.Totals.GrandTotal,
			doc.PaymentTerms, doc.Notes,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, doc.ID); err != nil {
			return err
		}
		if err := insertLines(ctx, tx, doc.ID, doc.Lines); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM document_links WHERE document_id = $1`, doc.ID); err != nil {
			return err
		}
		return insertLinks(ctx, tx, doc.ID, doc.Links)
	})
}

// Get loads one document with its lines and links.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (*Document, error) {
	query := `
		SELECT id, tenant_id, kind, number, status, doc_date, counterparty_id,
			global_discount_pct, levy_enabled, levy_rate_pct, stamp_duty,
			base_ht, tax_amount, levy_amount, grand_total,
			payment_terms, notes, created_by, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1 AND id = $2`

	doc, err := scanDocument(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLinesAndLinks(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns documents matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64, filter ListFilter) ([]Document, error) {
	query := `
		SELECT id, tenant_id, kind, number, status, doc_date, counterparty_id,
			global_discount_pct, levy_enabled, levy_rate_pct, stamp_duty,
			base_ht, tax_amount, levy_amount, grand_total,
			payment_terms, notes, created_by, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1`

	args := []any{tenantID}
	argNum := 2

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, string(filter.Kind))
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.CounterpartyID > 0 {
		query += fmt.Sprintf(" AND counterparty_id = $%d", argNum)
		args = append(args, filter.CounterpartyID)
		argNum++
	}
	if !filter.FromDate.IsZero() {
		query += fmt.Sprintf(" AND doc_date >= $%d", argNum)
		args = append(args, filter.FromDate)
		argNum++
	}
	if !filter.ToDate.IsZero() {
		query += fmt.Sprintf(" AND doc_date <= $%d", argNum)
		args = append(args, filter.ToDate)
		argNum++
	}
	if filter.NumberPattern != "" {
		query += fmt.Sprintf(" AND number ILIKE $%d", argNum)
		args = append(args, "%"+filter.NumberPattern+"%")
		argNum++
	}

	query += " ORDER BY doc_date DESC, id DESC"

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

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// LatestByKind returns the most recently numbered document of a kind, used
// to derive the next number in a sequence.
func (r *Repository) LatestByKind(ctx context.Context, tenantID int64, kind Kind) (*Document, error) {
	query := `
		SELECT id, tenant_id, kind, number, status, doc_date, counterparty_id,
			global_discount_pct, levy_enabled, levy_rate_pct, stamp_duty,
			base_ht, tax_amount, levy_amount, grand_total,
			payment_terms, notes, created_by, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1 AND kind = $2
		ORDER BY id DESC
		LIMIT 1`

	return scanDocument(r.pool.QueryRow(ctx, query, tenantID, kind))
}

// FindLinkSource returns the id of a document of the given kind that links
// to linkedID, or zero if none exists.
func (r *Repository) FindLinkSource(ctx context.Context, tenantID int64, kind Kind, linkedID int64) (int64, error) {
	query := `
		SELECT d.id
		FROM documents d
		JOIN document_links l ON l.document_id = d.id
		WHERE d.tenant_id = $1 AND d.kind = $2 AND l.linked_id = $3
		LIMIT 1`

	var id int64
	err := r.pool.QueryRow(ctx, query, tenantID, kind, linkedID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// UpdateStatus transitions the status, guarded by the allowed source states.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id int64, from []Status, to Status) error {
	fromStrs := make([]string, 0, len(from))
	for _, s := range from {
		fromStrs = append(fromStrs, string(s))
	}
	query := `
		UPDATE documents SET status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = ANY($3)`

	tag, err := r.pool.Exec(ctx, query, tenantID, id, fromStrs, string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrImmutableState
	}
	return nil
}

// AppendNote appends a human-readable audit note to the document.
func (r *Repository) AppendNote(ctx context.Context, tenantID, id int64, note string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET notes = array_append(notes, $3), updated_at = NOW()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AdjustDeliveredQty decrements the delivered quantity on the delivery note
// line matching the product.
func (r *Repository) AdjustDeliveredQty(ctx context.Context, tenantID, id int64, ref shared.ProductRef, delta float64) error {
	query := `
		UPDATE document_lines SET delivered_qty = delivered_qty + $4
		WHERE document_id = (SELECT id FROM documents WHERE tenant_id = $1 AND id = $2)
		  AND product_ref = $3`

	tag, err := r.pool.Exec(ctx, query, tenantID, id, ref.String(), delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the document with its lines and links.
func (r *Repository) Delete(ctx context.Context, tenantID, id int64) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM document_links WHERE document_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// --- helpers ---

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func insertLines(ctx context.Context, tx pgx.Tx, documentID int64, lines []Line) error {
	for i, line := range lines {
		var levyPct pgtype.Float8
		if line.LevyPct != nil {
			levyPct = pgtype.Float8{Float64: *line.LevyPct, Valid: true}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO document_lines (
				document_id, position, product_ref, label, quantity,
				unit_price_ht, discount_pct, tax_pct, levy_pct, delivered_qty
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			documentID, i, line.ProductRef.String(), line.Label, line.Quantity,
			line.UnitPriceHT, line.DiscountPct, line.TaxPct, levyPct, line.DeliveredQty,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertLinks(ctx context.Context, tx pgx.Tx, documentID int64, links []Link) error {
	for _, link := range links {
		_, err := tx.Exec(ctx, `
			INSERT INTO document_links (document_id, linked_kind, linked_id)
			VALUES ($1, $2, $3)`,
			documentID, link.Kind, link.ID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) loadLinesAndLinks(ctx context.Context, doc *Document) error {
	rows, err := r.pool.Query(ctx, `
		SELECT product_ref, label, quantity, unit_price_ht, discount_pct, tax_pct, levy_pct, delivered_qty
		FROM document_lines
		WHERE document_id = $1
		ORDER BY position`, doc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		var ref string
		var levyPct pgtype.Float8
		if err := rows.Scan(&ref, &line.Label, &line.Quantity, &line.UnitPriceHT,
			&line.DiscountPct, &line.TaxPct, &levyPct, &line.DeliveredQty); err != nil {
			return err
		}
		line.ProductRef = shared.NormalizeProductRef(ref)
		if levyPct.Valid {
			v := levyPct.Float64
			line.LevyPct = &v
		}
		doc.Lines = append(doc.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	linkRows, err := r.pool.Query(ctx, `
		SELECT linked_kind, linked_id FROM document_links WHERE document_id = $1`, doc.ID)
	if err != nil {
		return err
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var link Link
		if err := linkRows.Scan(&link.Kind, &link.ID); err != nil {
			return err
		}
		doc.Links = append(doc.Links, link)
	}
	return linkRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Kind, &doc.Number, &doc.Status, &doc.Date, &doc.CounterpartyID,
		&doc.GlobalDiscountPct, &doc.LevyEnabled, &doc.LevyRatePct, &doc.Totals.StampDuty,
		&doc.Totals.BaseHT, &doc.Totals.TaxAmount, &doc.Totals.LevyAmount, &doc.Totals.GrandTotal,
		&doc.PaymentTerms, &doc.Notes, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.StampDuty = doc.Totals.StampDuty
	return &doc, nil
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicateNumber
	}
	return err
}
