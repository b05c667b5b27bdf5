package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for documents.
type RepositoryPort interface {
	Create(ctx context.Context, doc *Document) error
	Update(ctx context.Context, doc *Document) error
	Get(ctx context.Context, tenantID, id int64) (*Document, error)
	List(ctx context.Context, tenantID int64, filter ListFilter) ([]Document, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, from []Status, to Status) error
	AppendNote(ctx context.Context, tenantID, id int64, note string) error
	Delete(ctx context.Context, tenantID, id int64) error
	FindLinkSource(ctx context.Context, tenantID int64, kind Kind, linkedID int64) (int64, error)
}

// StockPort is implemented by the stock ledger synchronizer. Sync failures
// are logged, never surfaced: a document save must not fail because
// inventory reconciliation did.
type StockPort interface {
	SyncForDocument(ctx context.Context, doc *Document, prev []Line) error
	DeleteForDocument(ctx context.Context, tenantID int64, kind Kind, id int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SequencePort supplies document numbers when the caller provides none.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, key string) (string, error)
}

// CacheBumper invalidates derived balance reports after a mutation.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service handles commercial document business logic.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	stock    StockPort
	audit    AuditPort
	sequence SequencePort
	bumper   CacheBumper
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, stock StockPort, audit AuditPort, sequence SequencePort, bumper CacheBumper) *Service {
	return &Service{logger: logger, repo: repo, stock: stock, audit: audit, sequence: sequence, bumper: bumper}
}

// LineInput describes one incoming line item.
type LineInput struct {
	ProductRef  string
	Label       string
	Quantity    float64
	UnitPriceHT float64
	DiscountPct float64
	TaxPct      float64
	LevyPct     *float64
}

// CreateInput describes an incoming document.
type CreateInput struct {
	TenantID          int64
	Kind              Kind
	Number            string
	Date              time.Time
	CounterpartyID    int64
	Lines             []LineInput
	GlobalDiscountPct float64
	LevyEnabled       bool
	LevyRatePct       float64
	StampDuty         float64
	PaymentTerms      string
	Links             []Link
	CreatedBy         string
}

// CreateDocument creates a draft document with computed totals.
func (s *Service) CreateDocument(ctx context.Context, input CreateInput) (*Document, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	number := input.Number
	if number == "" {
		var err error
		number, err = s.sequence.Next(ctx, input.TenantID, string(input.Kind))
		if err != nil {
			return nil, err
		}
	}

	doc := &Document{
		TenantID:          input.TenantID,
		Kind:              input.Kind,
		Number:            number,
		Status:            StatusDraft,
		Date:              input.Date,
		CounterpartyID:    input.CounterpartyID,
		Lines:             buildLines(input.Lines),
		GlobalDiscountPct: input.GlobalDiscountPct,
		LevyEnabled:       input.LevyEnabled,
		LevyRatePct:       input.LevyRatePct,
		StampDuty:         input.StampDuty,
		PaymentTerms:      input.PaymentTerms,
		Links:             input.Links,
		CreatedBy:         input.CreatedBy,
	}
	doc.Totals.StampDuty = input.StampDuty
	ComputeTotals(doc)

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.record(ctx, doc, "document:create", fmt.Sprintf("Created %s %s", doc.Kind, doc.Number))
	s.bump(ctx)
	return doc, nil
}

// UpdateInput carries the editable fields of a document.
type UpdateInput struct {
	Date              time.Time
	CounterpartyID    int64
	Lines             []LineInput
	GlobalDiscountPct float64
	LevyEnabled       bool
	LevyRatePct       float64
	StampDuty         float64
	PaymentTerms      string
}

// UpdateDocument edits a document. Drafts accept any change; validated
// documents accept line, date and terms corrections only, and their stock
// movements are reconciled from the before/after snapshots. Terminal states
// reject every substantive edit.
func (s *Service) UpdateDocument(ctx context.Context, tenantID, id int64, input UpdateInput) (*Document, error) {
	doc, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	switch doc.Status {
	case StatusDraft:
		doc.CounterpartyID = input.CounterpartyID
		doc.GlobalDiscountPct = input.GlobalDiscountPct
		doc.LevyEnabled = input.LevyEnabled
		doc.LevyRatePct = input.LevyRatePct
		doc.StampDuty = input.StampDuty
	case StatusValidated:
		if input.CounterpartyID != doc.CounterpartyID {
			return nil, fmt.Errorf("%w: counterparty of a validated document", shared.ErrImmutableState)
		}
	default:
		return nil, shared.ErrImmutableState
	}

	prev := doc.Lines
	doc.Lines = buildLines(input.Lines)
	if !input.Date.IsZero() {
		doc.Date = input.Date
	}
	doc.PaymentTerms = input.PaymentTerms
	doc.Totals.StampDuty = doc.StampDuty
	ComputeTotals(doc)

	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, err
	}

	if doc.Status == StatusValidated && doc.Kind.HasStockEffect() {
		if err := s.stock.SyncForDocument(ctx, doc, prev); err != nil {
			s.logger.Error("stock sync on update", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}

	s.record(ctx, doc, "document:update", fmt.Sprintf("Updated %s %s", doc.Kind, doc.Number))
	s.bump(ctx)
	return doc, nil
}

// ValidateDocument transitions a draft to validated and reconciles stock.
func (s *Service) ValidateDocument(ctx context.Context, tenantID, id int64) (*Document, error) {
	if err := s.repo.UpdateStatus(ctx, tenantID, id, []Status{StatusDraft}, StatusValidated); err != nil {
		return nil, err
	}
	doc, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if doc.Kind.HasStockEffect() {
		if err := s.stock.SyncForDocument(ctx, doc, nil); err != nil {
			s.logger.Error("stock sync on validate", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}

	s.record(ctx, doc, "document:validate", fmt.Sprintf("Validated %s %s", doc.Kind, doc.Number))
	s.bump(ctx)
	return doc, nil
}

// CancelDocument cancels a draft or validated document. Movements produced
// by a validated document are removed with it.
func (s *Service) CancelDocument(ctx context.Context, tenantID, id int64) error {
	doc, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, []Status{StatusDraft, StatusValidated}, StatusCancelled); err != nil {
		return err
	}
	if doc.Status == StatusValidated && doc.Kind.HasStockEffect() {
		if err := s.stock.DeleteForDocument(ctx, tenantID, doc.Kind, id); err != nil {
			s.logger.Error("stock cleanup on cancel", slog.Int64("document_id", id), slog.Any("error", err))
		}
	}
	s.record(ctx, doc, "document:cancel", fmt.Sprintf("Cancelled %s %s", doc.Kind, doc.Number))
	s.bump(ctx)
	return nil
}

// DeleteDocument removes a draft document entirely.
func (s *Service) DeleteDocument(ctx context.Context, tenantID, id int64) error {
	doc, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if doc.Status != StatusDraft {
		return shared.ErrImmutableState
	}
	if err := s.stock.DeleteForDocument(ctx, tenantID, doc.Kind, id); err != nil {
		s.logger.Error("stock cleanup on delete", slog.Int64("document_id", id), slog.Any("error", err))
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.record(ctx, doc, "document:delete", fmt.Sprintf("Deleted %s %s", doc.Kind, doc.Number))
	s.bump(ctx)
	return nil
}

// GetDocument loads one document.
func (s *Service) GetDocument(ctx context.Context, tenantID, id int64) (*Document, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// ListDocuments lists documents matching a filter.
func (s *Service) ListDocuments(ctx context.Context, tenantID int64, filter ListFilter) ([]Document, error) {
	return s.repo.List(ctx, tenantID, filter)
}

func (s *Service) record(ctx context.Context, doc *Document, action, message string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: doc.TenantID,
		Actor:    shared.ActorFromContext(ctx).Email,
		Action:   action,
		Area:     "documents",
		Message:  message,
		Meta: map[string]any{
			"document_id": doc.ID,
			"kind":        string(doc.Kind),
			"number":      doc.Number,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
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

func validateInput(input CreateInput) error {
	if input.TenantID == 0 {
		return fmt.Errorf("%w: tenant id required", shared.ErrValidationFailed)
	}
	if input.Kind == "" {
		return fmt.Errorf("%w: document kind required", shared.ErrValidationFailed)
	}
	if input.CounterpartyID == 0 && input.Kind != KindQuote {
		return fmt.Errorf("%w: counterparty required", shared.ErrValidationFailed)
	}
	for i, line := range input.Lines {
		if line.Quantity < 0 && input.Kind != KindCreditNote {
			return fmt.Errorf("%w: negative quantity on line %d", shared.ErrValidationFailed, i+1)
		}
		if line.UnitPriceHT < 0 {
			return fmt.Errorf("%w: negative unit price on line %d", shared.ErrValidationFailed, i+1)
		}
	}
	return nil
}

func buildLines(inputs []LineInput) []Line {
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		lines = append(lines, Line{
			ProductRef:  shared.NormalizeProductRef(in.ProductRef),
			Label:       in.Label,
			Quantity:    in.Quantity,
			UnitPriceHT: in.UnitPriceHT,
			DiscountPct: in.DiscountPct,
			TaxPct:      in.TaxPct,
			LevyPct:     in.LevyPct,
		})
	}
	return lines
}
