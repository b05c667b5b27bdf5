package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DocumentPort is the slice of the document store the bridge uses.
type DocumentPort interface {
	Get(ctx context.Context, tenantID, id int64) (*documents.Document, error)
	Create(ctx context.Context, doc *documents.Document) error
	Delete(ctx context.Context, tenantID, id int64) error
	FindLinkSource(ctx context.Context, tenantID int64, kind documents.Kind, linkedID int64) (int64, error)
	LatestByKind(ctx context.Context, tenantID int64, kind documents.Kind) (*documents.Document, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, from []documents.Status, to documents.Status) error
	AppendNote(ctx context.Context, tenantID, id int64, note string) error
}

// PaymentPort re-points payment allocations to the official invoice.
type PaymentPort interface {
	RebindInvoice(ctx context.Context, tenantID, oldInvoiceID int64, official *documents.Document) (float64, error)
}

// StockPort triggers ledger reconciliation for the official invoice.
type StockPort interface {
	SyncForDocument(ctx context.Context, doc *documents.Document, prev []documents.Line) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SequencePort supplies a number when none can be derived from the last
// official invoice.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, key string) (string, error)
}

// CacheBumper invalidates derived balance reports after a conversion.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service promotes internal invoices into official sales invoices,
// re-parenting stock movements and payment allocations along the way.
type Service struct {
	logger    *slog.Logger
	documents DocumentPort
	payments  PaymentPort
	stock     StockPort
	audit     AuditPort
	sequence  SequencePort
	bumper    CacheBumper
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, docs DocumentPort, pays PaymentPort, stock StockPort, audit AuditPort, sequence SequencePort, bumper CacheBumper) *Service {
	return &Service{
		logger:    logger,
		documents: docs,
		payments:  pays,
		stock:     stock,
		audit:     audit,
		sequence:  sequence,
		bumper:    bumper,
		now:       time.Now,
	}
}

// Convert promotes the provisional invoice into an official one. The
// official document is dated today, immediately validated, and carries
// recomputed totals; the provisional document is archived with a note
// recording what moved where.
func (s *Service) Convert(ctx context.Context, tenantID, provisionalID int64) (*documents.Document, error) {
	prov, err := s.documents.Get(ctx, tenantID, provisionalID)
	if err != nil {
		return nil, err
	}
	if prov.Kind != documents.KindInternalInvoice {
		return nil, fmt.Errorf("%w: document %s is not a provisional invoice", shared.ErrNotFound, prov.Number)
	}

	existing, err := s.documents.FindLinkSource(ctx, tenantID, documents.KindSalesInvoice, provisionalID)
	if err != nil {
		return nil, err
	}
	if existing != 0 {
		return nil, shared.ErrAlreadyConverted
	}

	number, err := s.nextOfficialNumber(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	official := &documents.Document{
		TenantID:          tenantID,
		Kind:              documents.KindSalesInvoice,
		Number:            number,
		Status:            documents.StatusValidated,
		Date:              today,
		CounterpartyID:    prov.CounterpartyID,
		Lines:             append([]documents.Line(nil), prov.Lines...),
		GlobalDiscountPct: prov.GlobalDiscountPct,
		LevyEnabled:       prov.LevyEnabled,
		LevyRatePct:       prov.LevyRatePct,
		StampDuty:         prov.StampDuty,
		PaymentTerms:      prov.PaymentTerms,
		Links:             []documents.Link{{Kind: documents.KindInternalInvoice, ID: prov.ID}},
		CreatedBy:         shared.ActorFromContext(ctx).Email,
	}
	official.Totals.StampDuty = prov.StampDuty
	documents.ComputeTotals(official)

	if err := s.documents.Create(ctx, official); err != nil {
		return nil, err
	}

	transferred, err := s.payments.RebindInvoice(ctx, tenantID, prov.ID, official)
	if err != nil {
		s.compensate(ctx, tenantID, official.ID)
		return nil, err
	}

	err = s.documents.UpdateStatus(ctx, tenantID, prov.ID,
		[]documents.Status{documents.StatusDraft, documents.StatusValidated, documents.StatusPaid},
		documents.StatusArchived)
	if err != nil {
		s.compensate(ctx, tenantID, official.ID)
		return nil, err
	}

	note := fmt.Sprintf("Converted to %s on %s; %.2f in payments transferred",
		official.Number, today.Format("2006-01-02"), transferred)
	if err := s.documents.AppendNote(ctx, tenantID, prov.ID, note); err != nil {
		s.logger.Warn("conversion note", slog.Int64("provisional_id", prov.ID), slog.Any("error", err))
	}

	// The provisional invoice may never have produced movements.
	if err := s.stock.SyncForDocument(ctx, official, nil); err != nil {
		s.logger.Error("stock sync on conversion", slog.Int64("document_id", official.ID), slog.Any("error", err))
	}

	s.record(ctx, official, prov, transferred)
	s.bump(ctx)
	return official, nil
}

// nextOfficialNumber derives the next number from the last official
// invoice, falling back to the sequence service.
func (s *Service) nextOfficialNumber(ctx context.Context, tenantID int64) (string, error) {
	latest, err := s.documents.LatestByKind(ctx, tenantID, documents.KindSalesInvoice)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}
	if latest != nil {
		if next, ok := NextNumber(latest.Number); ok {
			return next, nil
		}
	}
	return s.sequence.Next(ctx, tenantID, string(documents.KindSalesInvoice))
}

// compensate undoes the half-finished conversion so the caller sees
// either a complete one or none.
func (s *Service) compensate(ctx context.Context, tenantID, officialID int64) {
	if err := s.documents.Delete(ctx, tenantID, officialID); err != nil {
		s.logger.Error("conversion rollback", slog.Int64("document_id", officialID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, official, prov *documents.Document, transferred float64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: official.TenantID,
		Actor:    shared.ActorFromContext(ctx).Email,
		Action:   "document:convert",
		Area:     "conversion",
		Message:  fmt.Sprintf("Converted %s to %s", prov.Number, official.Number),
		Meta: map[string]any{
			"provisional_id": prov.ID,
			"official_id":    official.ID,
			"official_no":    official.Number,
			"transferred":    transferred,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", "document:convert"), slog.Any("error", err))
	}
}

func (s *Service) bump(ctx context.Context) {
	if s.bumper == nil {
		return
	}
	if err := s.bumper.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("balance cache bump", slog.Any("error", err))
	}
}
