package balances

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/counterparties"
	"github.com/meridian-erp/meridian-erp/internal/payments"
)

// DocumentPort is the slice of the document store the aggregator reads.
type DocumentPort interface {
	List(ctx context.Context, tenantID int64, filter documents.ListFilter) ([]documents.Document, error)
}

// PaymentPort lists payments with their lines.
type PaymentPort interface {
	List(ctx context.Context, tenantID int64, filter payments.ListFilter) ([]*payments.Payment, error)
}

// CounterpartyPort lists the tenant's customers and suppliers.
type CounterpartyPort interface {
	Get(ctx context.Context, tenantID, id int64) (*counterparties.Counterparty, error)
	List(ctx context.Context, tenantID int64, role counterparties.Role) ([]counterparties.Counterparty, error)
}

// balanceKinds are the document kinds that carry a counterparty balance.
var balanceKinds = []documents.Kind{
	documents.KindSalesInvoice,
	documents.KindInternalInvoice,
	documents.KindPurchaseInvoice,
	documents.KindCreditNote,
}

// Service reconstructs counterparty balances from documents and payments.
// It never fails on missing data: absent due dates age as maximally
// overdue and unnamed counterparties get a placeholder label.
type Service struct {
	logger         *slog.Logger
	documents      DocumentPort
	payments       PaymentPort
	counterparties CounterpartyPort
	cache          *Cache
	collator       *collate.Collator
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, docs DocumentPort, pays PaymentPort, cps CounterpartyPort, cache *Cache) *Service {
	return &Service{
		logger:         logger,
		documents:      docs,
		payments:       pays,
		counterparties: cps,
		cache:          cache,
		collator:       collate.New(language.French, collate.IgnoreCase),
	}
}

// ComputeBalances rebuilds the balance report for the tenant, optionally
// narrowed to one counterparty, as of the reference date. Every known
// counterparty appears in the output, including those owing nothing.
func (s *Service) ComputeBalances(ctx context.Context, tenantID, counterpartyID int64, referenceDate time.Time) (*Report, error) {
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}

	var (
		parties []counterparties.Counterparty
		docs    []documents.Document
		pays    []*payments.Payment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		parties, err = s.loadCounterparties(gctx, tenantID, counterpartyID)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = s.loadDocuments(gctx, tenantID, counterpartyID)
		return err
	})
	g.Go(func() error {
		var err error
		pays, err = s.payments.List(gctx, tenantID, payments.ListFilter{CounterpartyID: counterpartyID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paidByInvoice := make(map[int64]float64)
	paysByParty := make(map[int64][]*payments.Payment)
	for _, p := range pays {
		paysByParty[p.CounterpartyID] = append(paysByParty[p.CounterpartyID], p)
		for _, l := range p.Lines {
			if p.IsOnAccountLine(l) {
				continue
			}
			paidByInvoice[l.InvoiceID] += l.Amount
		}
	}

	byParty := make(map[int64]*CounterpartyBalance, len(parties))
	var order []int64
	for _, cp := range parties {
		name := cp.Name
		if name == "" {
			name = UnknownCounterpartyName
		}
		byParty[cp.ID] = &CounterpartyBalance{CounterpartyID: cp.ID, Name: name}
		order = append(order, cp.ID)
	}

	for _, doc := range docs {
		entry, known := byParty[doc.CounterpartyID]
		if !known {
			// Documents can reference a counterparty deleted since; keep
			// their money visible rather than dropping it.
			entry = &CounterpartyBalance{CounterpartyID: doc.CounterpartyID, Name: UnknownCounterpartyName}
			byParty[doc.CounterpartyID] = entry
			order = append(order, doc.CounterpartyID)
		}

		if doc.Kind == documents.KindCreditNote || doc.Totals.GrandTotal < 0 {
			entry.CreditNotes = round2(entry.CreditNotes + math.Abs(doc.Totals.GrandTotal))
			continue
		}

		paid := paidByInvoice[doc.ID]
		remaining := round2(doc.Totals.GrandTotal - paid)
		entry.SoldeDu = round2(entry.SoldeDu + remaining)
		if remaining <= 0 {
			continue
		}

		var due time.Time
		if !doc.Date.IsZero() {
			due = documents.ResolveDueDate(doc.Date, doc.PaymentTerms)
		}
		aging := documents.AgingBucket(due, referenceDate)
		addToBucket(&entry.Buckets, aging.Bucket, remaining)
		entry.OpenInvoices = append(entry.OpenInvoices, OpenInvoice{
			InvoiceID:   doc.ID,
			Number:      doc.Number,
			Date:        doc.Date,
			DueDate:     due,
			Total:       doc.Totals.GrandTotal,
			Paid:        round2(paid),
			Remaining:   remaining,
			Bucket:      aging.Bucket,
			DaysPastDue: aging.DaysPastDue,
		})
	}

	var grandTotal float64
	balances := make([]CounterpartyBalance, 0, len(order))
	for _, id := range order {
		entry := byParty[id]
		// Credit notes reduce the total after aging; they are not aged
		// themselves.
		entry.SoldeDu = round2(entry.SoldeDu - entry.CreditNotes)
		entry.NetAdvanceBalance = payments.NetAdvanceBalance(paysByParty[id])
		sort.Slice(entry.OpenInvoices, func(i, j int) bool {
			return entry.OpenInvoices[i].Date.Before(entry.OpenInvoices[j].Date)
		})
		if entry.SoldeDu > 0 {
			grandTotal += entry.SoldeDu
		}
		balances = append(balances, *entry)
	}
	s.sortBalances(balances)

	return &Report{
		ReferenceDate: referenceDate,
		Balances:      balances,
		GrandTotal:    round2(grandTotal),
		GeneratedAt:   time.Now(),
	}, nil
}

// GetReport serves the balance report through the versioned cache when one
// is configured.
func (s *Service) GetReport(ctx context.Context, tenantID, counterpartyID int64, referenceDate time.Time) (*Report, error) {
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}
	if s.cache == nil {
		return s.ComputeBalances(ctx, tenantID, counterpartyID, referenceDate)
	}

	key, err := s.cache.BuildKey(ctx, reportKey(tenantID, counterpartyID, referenceDate))
	if err != nil {
		s.logger.Warn("balance cache key", slog.Any("error", err))
		return s.ComputeBalances(ctx, tenantID, counterpartyID, referenceDate)
	}

	var report Report
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.ComputeBalances(ctx, tenantID, counterpartyID, referenceDate)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) loadCounterparties(ctx context.Context, tenantID, counterpartyID int64) ([]counterparties.Counterparty, error) {
	if counterpartyID > 0 {
		cp, err := s.counterparties.Get(ctx, tenantID, counterpartyID)
		if err != nil {
			return nil, err
		}
		return []counterparties.Counterparty{*cp}, nil
	}

	customers, err := s.counterparties.List(ctx, tenantID, counterparties.RoleCustomer)
	if err != nil {
		return nil, err
	}
	suppliers, err := s.counterparties.List(ctx, tenantID, counterparties.RoleSupplier)
	if err != nil {
		return nil, err
	}
	return append(customers, suppliers...), nil
}

func (s *Service) loadDocuments(ctx context.Context, tenantID, counterpartyID int64) ([]documents.Document, error) {
	var docs []documents.Document
	for _, kind := range balanceKinds {
		batch, err := s.documents.List(ctx, tenantID, documents.ListFilter{
			Kind:           kind,
			CounterpartyID: counterpartyID,
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range batch {
			switch doc.Status {
			case documents.StatusCancelled, documents.StatusDraft:
				continue
			case documents.StatusArchived:
				// A converted provisional invoice: its payments were moved
				// to the official document, which carries the debt now.
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// sortBalances orders positives descending, then zeros, then negatives by
// rising absolute value, with a locale-aware name tiebreak.
func (s *Service) sortBalances(balances []CounterpartyBalance) {
	rank := func(v float64) int {
		switch {
		case v > 0:
			return 0
		case v == 0:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(balances, func(i, j int) bool {
		a, b := balances[i], balances[j]
		ra, rb := rank(a.SoldeDu), rank(b.SoldeDu)
		if ra != rb {
			return ra < rb
		}
		if a.SoldeDu != b.SoldeDu {
			if ra == 0 {
				return a.SoldeDu > b.SoldeDu
			}
			return math.Abs(a.SoldeDu) < math.Abs(b.SoldeDu)
		}
		return s.collator.CompareString(a.Name, b.Name) < 0
	})
}

func addToBucket(b *Buckets, bucket string, amount float64) {
	switch bucket {
	case documents.Bucket0To30:
		b.Days0To30 = round2(b.Days0To30 + amount)
	case documents.Bucket31To60:
		b.Days31To60 = round2(b.Days31To60 + amount)
	case documents.Bucket61To90:
		b.Days61To90 = round2(b.Days61To90 + amount)
	default:
		b.Over90 = round2(b.Over90 + amount)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
