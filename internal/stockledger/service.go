package stockledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrNoDirection indicates a document kind without a stock effect.
var ErrNoDirection = errors.New("stockledger: document kind has no stock direction")

// RepositoryPort abstracts movement persistence for the service.
type RepositoryPort interface {
	Upsert(ctx context.Context, m *Movement) error
	DeleteBySourceAndProduct(ctx context.Context, tenantID int64, kind documents.Kind, sourceID, productID int64) error
	DeleteBySource(ctx context.Context, tenantID int64, kind documents.Kind, sourceID int64) error
	CountBySource(ctx context.Context, tenantID int64, kind documents.Kind, sourceID int64) (int, error)
	GetBySourceAndProduct(ctx context.Context, tenantID int64, kind documents.Kind, sourceID, productID int64) (*Movement, error)
}

// ProductPort resolves product references to catalogue entries.
type ProductPort interface {
	GetByRef(ctx context.Context, tenantID int64, ref shared.ProductRef) (*products.Product, error)
}

// DeliveryPort gives access to the delivery note a return reverses.
type DeliveryPort interface {
	AdjustDeliveredQty(ctx context.Context, tenantID, id int64, ref shared.ProductRef, delta float64) error
	AppendNote(ctx context.Context, tenantID, id int64, note string) error
}

// MetricsPort counts skipped lines for observability.
type MetricsPort interface {
	IncSyncFailure()
}

// Service keeps the inventory ledger consistent with document lifecycles.
// Failures are handled per line: a lookup or save error skips that line and
// the loop continues, so partial success is expected and reconciled by the
// next update.
type Service struct {
	logger     *slog.Logger
	repo       RepositoryPort
	products   ProductPort
	deliveries DeliveryPort
	metrics    MetricsPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, products ProductPort, deliveries DeliveryPort, metrics MetricsPort) *Service {
	return &Service{logger: logger, repo: repo, products: products, deliveries: deliveries, metrics: metrics}
}

// SyncForDocument reconciles movements with the document's current lines.
// With a nil previous snapshot every positive stocked line is booked; with a
// snapshot the symmetric difference drives creates, updates and deletes.
// The decision is derived from the two snapshots alone.
func (s *Service) SyncForDocument(ctx context.Context, doc *documents.Document, prev []documents.Line) error {
	if doc == nil || !doc.Kind.HasStockEffect() {
		return nil
	}
	direction, ok := DirectionFor(doc.Kind)
	if !ok {
		return ErrNoDirection
	}

	// An invoice built from a delivery note that already moved stock must
	// not book the dispatch a second time.
	if doc.Kind == documents.KindSalesInvoice {
		if dnID := doc.LinkedID(documents.KindDeliveryNote); dnID != 0 {
			count, err := s.repo.CountBySource(ctx, doc.TenantID, documents.KindDeliveryNote, dnID)
			if err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
		}
	}

	diff := documents.DiffLines(prev, doc.Lines)

	if doc.Kind == documents.KindReturnNote {
		// Must run before the movement upserts below: the ledger rows
		// still record what was applied by the previous sync.
		s.applyReturn(ctx, doc, diff.Removed)
	}

	for _, p := range diff.Added {
		s.applyProduct(ctx, doc, direction, p)
	}
	for _, p := range diff.Changed {
		s.applyProduct(ctx, doc, direction, p)
	}
	for _, p := range diff.Removed {
		s.removeProduct(ctx, doc, p)
	}
	return nil
}

// DeleteForDocument removes every movement of the deleted document.
func (s *Service) DeleteForDocument(ctx context.Context, tenantID int64, kind documents.Kind, id int64) error {
	return s.repo.DeleteBySource(ctx, tenantID, kind, id)
}

func (s *Service) applyProduct(ctx context.Context, doc *documents.Document, direction MovementType, p documents.ProductQty) {
	if p.Qty <= 0 {
		s.removeProduct(ctx, doc, p)
		return
	}

	product, err := s.products.GetByRef(ctx, doc.TenantID, p.Ref)
	if err != nil {
		s.skipLine(doc, p, "product lookup failed", err)
		return
	}
	if !product.Stocked {
		// A product reconfigured as a service loses its ledger entry.
		s.removeProduct(ctx, doc, p)
		return
	}

	m := &Movement{
		TenantID:   doc.TenantID,
		ProductID:  product.ID,
		Type:       direction,
		Quantity:   p.Qty,
		Date:       doc.Date,
		SourceKind: doc.Kind,
		SourceID:   doc.ID,
		Code:       uuid.NewString(),
		Note:       fmt.Sprintf("%s %s", doc.Kind, doc.Number),
		CreatedBy:  doc.CreatedBy,
	}
	if err := s.repo.Upsert(ctx, m); err != nil {
		s.skipLine(doc, p, "movement save failed", err)
	}
}

func (s *Service) removeProduct(ctx context.Context, doc *documents.Document, p documents.ProductQty) {
	product, err := s.products.GetByRef(ctx, doc.TenantID, p.Ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return
		}
		s.skipLine(doc, p, "product lookup failed", err)
		return
	}
	if err := s.repo.DeleteBySourceAndProduct(ctx, doc.TenantID, doc.Kind, doc.ID, product.ID); err != nil {
		s.skipLine(doc, p, "movement delete failed", err)
	}
}

// applyReturn reconciles the originating delivery note's delivered
// quantities with the return's lines, leaving an audit trail there instead
// of mutating history silently. The ledger row booked for each
// (return, product) pair records what an earlier sync already applied, so
// only the difference is pushed and re-running the sync is a no-op.
func (s *Service) applyReturn(ctx context.Context, doc *documents.Document, removed []documents.ProductQty) {
	dnID := doc.LinkedID(documents.KindDeliveryNote)
	if dnID == 0 || s.deliveries == nil {
		return
	}
	for _, p := range documents.DiffLines(nil, doc.Lines).Added {
		if p.Qty <= 0 {
			continue
		}
		s.adjustReturnedQty(ctx, doc, dnID, p.Ref, p.Qty)
	}
	for _, p := range removed {
		s.adjustReturnedQty(ctx, doc, dnID, p.Ref, 0)
	}
}

// adjustReturnedQty pushes the delta between the return's current quantity
// for a product and the quantity its ledger row already applied.
func (s *Service) adjustReturnedQty(ctx context.Context, doc *documents.Document, dnID int64, ref shared.ProductRef, qty float64) {
	product, err := s.products.GetByRef(ctx, doc.TenantID, ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return
		}
		s.logger.Error("return product lookup",
			slog.Int64("delivery_note_id", dnID),
			slog.String("product_ref", ref.String()),
			slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.IncSyncFailure()
		}
		return
	}

	applied := 0.0
	existing, err := s.repo.GetBySourceAndProduct(ctx, doc.TenantID, doc.Kind, doc.ID, product.ID)
	switch {
	case err == nil:
		applied = existing.Quantity
	case !errors.Is(err, shared.ErrNotFound):
		s.logger.Error("return ledger lookup",
			slog.Int64("delivery_note_id", dnID),
			slog.String("product_ref", ref.String()),
			slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.IncSyncFailure()
		}
		return
	}

	delta := qty - applied
	if delta == 0 {
		return
	}
	if err := s.deliveries.AdjustDeliveredQty(ctx, doc.TenantID, dnID, ref, -delta); err != nil {
		s.logger.Error("return delivered-qty adjust",
			slog.Int64("delivery_note_id", dnID),
			slog.String("product_ref", ref.String()),
			slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.IncSyncFailure()
		}
		return
	}
	note := fmt.Sprintf("Return %s: %.2f x %s returned to stock on %s",
		doc.Number, delta, ref.String(), doc.Date.Format("2006-01-02"))
	if err := s.deliveries.AppendNote(ctx, doc.TenantID, dnID, note); err != nil {
		s.logger.Warn("return audit note", slog.Int64("delivery_note_id", dnID), slog.Any("error", err))
	}
}

func (s *Service) skipLine(doc *documents.Document, p documents.ProductQty, msg string, err error) {
	s.logger.Error("stock sync line skipped",
		slog.String("reason", msg),
		slog.Int64("tenant_id", doc.TenantID),
		slog.String("kind", string(doc.Kind)),
		slog.Int64("document_id", doc.ID),
		slog.String("product_ref", p.Ref.String()),
		slog.Any("error", err))
	if s.metrics != nil {
		s.metrics.IncSyncFailure()
	}
}
