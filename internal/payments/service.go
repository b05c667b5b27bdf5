package payments

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// settleTolerance absorbs 2dp rounding when deciding whether an invoice
// is fully settled.
const settleTolerance = 0.005

// RepositoryPort defines data access methods for payments.
type RepositoryPort interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	UpdateLines(ctx context.Context, payments []*Payment) error
	Get(ctx context.Context, tenantID, id int64) (*Payment, error)
	List(ctx context.Context, tenantID int64, filter ListFilter) ([]*Payment, error)
	Delete(ctx context.Context, tenantID, id int64) error
	RebindInvoice(ctx context.Context, tenantID, oldInvoiceID, newInvoiceID int64, newNumber string, newTotal float64) (int64, error)
}

// InvoicePort is the slice of the document store the allocator needs.
type InvoicePort interface {
	Get(ctx context.Context, tenantID, id int64) (*documents.Document, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, from []documents.Status, to documents.Status) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SequencePort supplies payment numbers when the caller provides none.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, key string) (string, error)
}

// CacheBumper invalidates derived balance reports after a mutation.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service distributes payments across invoices and keeps cumulative paid
// figures consistent when history changes.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	invoices InvoicePort
	audit    AuditPort
	sequence SequencePort
	bumper   CacheBumper
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, invoices InvoicePort, audit AuditPort, sequence SequencePort, bumper CacheBumper) *Service {
	return &Service{logger: logger, repo: repo, invoices: invoices, audit: audit, sequence: sequence, bumper: bumper}
}

// LineInput is one requested allocation.
type LineInput struct {
	InvoiceID int64
	Amount    float64
	OnAccount bool
}

// ApplyInput describes an incoming payment.
type ApplyInput struct {
	TenantID       int64
	CounterpartyID int64
	Number         string
	Date           time.Time
	Method         Method
	Reference      string
	IsOnAccount    bool
	AdvanceUsed    float64
	Lines          []LineInput
	CreatedBy      string
}

// ApplyPayment records a payment. Invoice-targeted lines capture the
// cumulative prior paid amount at creation time; a line that would drive
// an invoice's remaining balance negative is rejected, overpayment must
// be banked explicitly through an on-account line instead.
func (s *Service) ApplyPayment(ctx context.Context, input ApplyInput) (*Payment, error) {
	if err := validateApply(input); err != nil {
		return nil, err
	}

	number := input.Number
	if number == "" {
		var err error
		number, err = s.sequence.Next(ctx, input.TenantID, "PAYMENT")
		if err != nil {
			return nil, err
		}
	}

	p := &Payment{
		TenantID:       input.TenantID,
		CounterpartyID: input.CounterpartyID,
		Number:         number,
		Date:           input.Date,
		Method:         input.Method,
		Reference:      input.Reference,
		IsOnAccount:    input.IsOnAccount,
		AdvanceUsed:    round2(input.AdvanceUsed),
		CreatedBy:      input.CreatedBy,
	}

	lines, settled, err := s.buildLines(ctx, p, input.Lines)
	if err != nil {
		return nil, err
	}
	p.Lines = lines
	p.Amount = paymentAmount(lines)

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	for invoiceID := range settled {
		s.markPaid(ctx, p.TenantID, invoiceID)
	}

	s.record(ctx, p, "payment:apply", fmt.Sprintf("Payment %s of %.2f recorded", p.Number, p.Amount))
	s.bump(ctx)
	return p, nil
}

// EditInput carries the editable fields of a payment.
type EditInput struct {
	Date        time.Time
	Method      Method
	Reference   string
	IsOnAccount bool
	AdvanceUsed float64
	Lines       []LineInput
}

// EditPayment replaces a payment's lines and re-derives the cumulative
// figures of every invoice the old or new lines touch.
func (s *Service) EditPayment(ctx context.Context, tenantID, id int64, input EditInput) (*Payment, error) {
	p, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	touched := invoiceIDs(p)

	if !input.Date.IsZero() {
		p.Date = input.Date
	}
	if input.Method != "" {
		p.Method = input.Method
	}
	p.Reference = input.Reference
	p.IsOnAccount = input.IsOnAccount
	p.AdvanceUsed = round2(input.AdvanceUsed)

	lines, _, err := s.buildLinesExcluding(ctx, p, input.Lines, p.ID)
	if err != nil {
		return nil, err
	}
	p.Lines = lines
	p.Amount = paymentAmount(lines)

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	for id := range invoiceIDs(p) {
		touched[id] = struct{}{}
	}
	s.reconcileInvoices(ctx, tenantID, touched)

	s.record(ctx, p, "payment:edit", fmt.Sprintf("Payment %s edited, now %.2f", p.Number, p.Amount))
	s.bump(ctx)
	return p, nil
}

// DeletePayment removes a payment and reverses all of its effects:
// cumulative figures on the invoices it touched are recomputed without
// its lines, and the credit it banked or consumed disappears with it.
func (s *Service) DeletePayment(ctx context.Context, tenantID, id int64) error {
	p, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.reconcileInvoices(ctx, tenantID, invoiceIDs(p))

	s.record(ctx, p, "payment:delete", fmt.Sprintf("Payment %s of %.2f deleted", p.Number, p.Amount))
	s.bump(ctx)
	return nil
}

// GetPayment loads one payment.
func (s *Service) GetPayment(ctx context.Context, tenantID, id int64) (*Payment, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// ListPayments lists payments matching a filter.
func (s *Service) ListPayments(ctx context.Context, tenantID int64, filter ListFilter) ([]*Payment, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// RebindInvoice re-points every payment line from one invoice to another
// and rebuilds the cumulative figures oldest-first, used when a
// provisional invoice becomes official. It returns the amount moved.
func (s *Service) RebindInvoice(ctx context.Context, tenantID, oldInvoiceID int64, official *documents.Document) (float64, error) {
	moved, err := s.repo.RebindInvoice(ctx, tenantID, oldInvoiceID, official.ID, official.Number, official.Totals.GrandTotal)
	if err != nil {
		return 0, err
	}
	if moved == 0 {
		return 0, nil
	}

	affected, err := s.repo.List(ctx, tenantID, ListFilter{InvoiceID: official.ID})
	if err != nil {
		return 0, err
	}
	transferred := RecomputeInvoiceLines(affected, official.ID, official.Totals.GrandTotal)
	if err := s.repo.UpdateLines(ctx, affected); err != nil {
		return 0, err
	}

	if transferred+settleTolerance >= official.Totals.GrandTotal {
		s.markPaid(ctx, tenantID, official.ID)
	}
	return transferred, nil
}

// --- internals ---

// buildLines resolves invoice lines against current history and computes
// their cumulative figures. It returns the ids of invoices the payment
// fully settles.
func (s *Service) buildLines(ctx context.Context, p *Payment, inputs []LineInput) ([]Line, map[int64]struct{}, error) {
	return s.buildLinesExcluding(ctx, p, inputs, 0)
}

func (s *Service) buildLinesExcluding(ctx context.Context, p *Payment, inputs []LineInput, excludePaymentID int64) ([]Line, map[int64]struct{}, error) {
	lines := make([]Line, 0, len(inputs))
	settled := make(map[int64]struct{})
	// Prior paid per invoice, advanced as this payment's own lines stack.
	prior := make(map[int64]float64)
	totals := make(map[int64]float64)
	numbers := make(map[int64]string)

	for i, in := range inputs {
		if in.Amount <= 0 {
			return nil, nil, fmt.Errorf("%w: non-positive amount on line %d", shared.ErrValidationFailed, i+1)
		}

		if p.IsOnAccount || in.OnAccount || in.InvoiceID == 0 {
			if in.InvoiceID != 0 && !p.IsOnAccount && !in.OnAccount {
				return nil, nil, fmt.Errorf("%w: line %d targets no invoice", shared.ErrValidationFailed, i+1)
			}
			lines = append(lines, Line{Amount: round2(in.Amount), OnAccount: true})
			continue
		}

		if _, seen := prior[in.InvoiceID]; !seen {
			invoice, err := s.invoices.Get(ctx, p.TenantID, in.InvoiceID)
			if err != nil {
				return nil, nil, err
			}
			if !invoice.Kind.IsInvoiceKind() {
				return nil, nil, fmt.Errorf("%w: document %s is not an invoice", shared.ErrValidationFailed, invoice.Number)
			}
			history, err := s.repo.List(ctx, p.TenantID, ListFilter{InvoiceID: in.InvoiceID})
			if err != nil {
				return nil, nil, err
			}
			history = withoutPayment(history, excludePaymentID)
			prior[in.InvoiceID] = PaidTotal(history, in.InvoiceID)
			totals[in.InvoiceID] = invoice.Totals.GrandTotal
			numbers[in.InvoiceID] = invoice.Number
		}

		paidBefore := prior[in.InvoiceID]
		total := totals[in.InvoiceID]
		cumulative := paidBefore + in.Amount
		if cumulative > total+settleTolerance {
			return nil, nil, fmt.Errorf("%w: %.2f exceeds the %.2f remaining on invoice %s",
				shared.ErrInconsistentAllocation, in.Amount, total-paidBefore, numbers[in.InvoiceID])
		}

		lines = append(lines, Line{
			InvoiceID:        in.InvoiceID,
			InvoiceNumber:    numbers[in.InvoiceID],
			InvoiceTotal:     total,
			Amount:           round2(in.Amount),
			AmountPaidBefore: round2(paidBefore),
			RemainingBalance: round2(math.Max(0, total-cumulative)),
		})
		prior[in.InvoiceID] = cumulative
		if cumulative+settleTolerance >= total {
			settled[in.InvoiceID] = struct{}{}
		}
	}
	return lines, settled, nil
}

// reconcileInvoices rebuilds cumulative figures and settlement status for
// a set of invoices after history changed under them.
func (s *Service) reconcileInvoices(ctx context.Context, tenantID int64, ids map[int64]struct{}) {
	for invoiceID := range ids {
		invoice, err := s.invoices.Get(ctx, tenantID, invoiceID)
		if err != nil {
			s.logger.Error("invoice reload", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
			continue
		}
		affected, err := s.repo.List(ctx, tenantID, ListFilter{InvoiceID: invoiceID})
		if err != nil {
			s.logger.Error("payment history reload", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
			continue
		}
		paid := RecomputeInvoiceLines(affected, invoiceID, invoice.Totals.GrandTotal)
		if err := s.repo.UpdateLines(ctx, affected); err != nil {
			s.logger.Error("payment lines rewrite", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
			continue
		}

		if paid+settleTolerance >= invoice.Totals.GrandTotal {
			if invoice.Status == documents.StatusValidated {
				s.markPaid(ctx, tenantID, invoiceID)
			}
		} else if invoice.Status == documents.StatusPaid {
			if err := s.invoices.UpdateStatus(ctx, tenantID, invoiceID,
				[]documents.Status{documents.StatusPaid}, documents.StatusValidated); err != nil {
				s.logger.Error("invoice unsettle", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
			}
		}
	}
}

func (s *Service) markPaid(ctx context.Context, tenantID, invoiceID int64) {
	err := s.invoices.UpdateStatus(ctx, tenantID, invoiceID,
		[]documents.Status{documents.StatusValidated}, documents.StatusPaid)
	if err != nil && s.logger != nil {
		s.logger.Warn("invoice settle", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, p *Payment, action, message string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: p.TenantID,
		Actor:    shared.ActorFromContext(ctx).Email,
		Action:   action,
		Area:     "payments",
		Message:  message,
		Meta: map[string]any{
			"payment_id":      p.ID,
			"number":          p.Number,
			"counterparty_id": p.CounterpartyID,
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

func validateApply(input ApplyInput) error {
	if input.TenantID == 0 {
		return fmt.Errorf("%w: tenant id required", shared.ErrValidationFailed)
	}
	if input.CounterpartyID == 0 {
		return fmt.Errorf("%w: counterparty required", shared.ErrValidationFailed)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: a payment needs at least one line", shared.ErrValidationFailed)
	}
	if input.AdvanceUsed < 0 {
		return fmt.Errorf("%w: negative advance", shared.ErrValidationFailed)
	}
	return nil
}

func paymentAmount(lines []Line) float64 {
	var total float64
	for _, l := range lines {
		total += l.Amount
	}
	return round2(total)
}

func invoiceIDs(p *Payment) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, l := range p.Lines {
		if !p.IsOnAccountLine(l) {
			ids[l.InvoiceID] = struct{}{}
		}
	}
	return ids
}

func withoutPayment(payments []*Payment, id int64) []*Payment {
	if id == 0 {
		return payments
	}
	kept := payments[:0]
	for _, p := range payments {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return kept
}
