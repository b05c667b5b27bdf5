package balances

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/counterparties"
	"github.com/meridian-erp/meridian-erp/internal/payments"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeDocStore struct {
	docs  []documents.Document
	calls int
}

func (f *fakeDocStore) List(_ context.Context, tenantID int64, filter documents.ListFilter) ([]documents.Document, error) {
	f.calls++
	var out []documents.Document
	for _, d := range f.docs {
		if d.TenantID != tenantID || d.Kind != filter.Kind {
			continue
		}
		if filter.CounterpartyID > 0 && d.CounterpartyID != filter.CounterpartyID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type fakePayStore struct {
	payments []*payments.Payment
}

func (f *fakePayStore) List(_ context.Context, tenantID int64, filter payments.ListFilter) ([]*payments.Payment, error) {
	var out []*payments.Payment
	for _, p := range f.payments {
		if p.TenantID != tenantID {
			continue
		}
		if filter.CounterpartyID > 0 && p.CounterpartyID != filter.CounterpartyID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakePartyStore struct {
	parties []counterparties.Counterparty
}

func (f *fakePartyStore) Get(_ context.Context, tenantID, id int64) (*counterparties.Counterparty, error) {
	for _, cp := range f.parties {
		if cp.TenantID == tenantID && cp.ID == id {
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakePartyStore) List(_ context.Context, tenantID int64, role counterparties.Role) ([]counterparties.Counterparty, error) {
	var out []counterparties.Counterparty
	for _, cp := range f.parties {
		if cp.TenantID == tenantID && cp.Role == role {
			out = append(out, cp)
		}
	}
	return out, nil
}

func invoice(id, counterpartyID int64, number string, date time.Time, terms string, total float64) documents.Document {
	doc := documents.Document{
		ID:             id,
		TenantID:       1,
		Kind:           documents.KindSalesInvoice,
		Number:         number,
		Status:         documents.StatusValidated,
		Date:           date,
		CounterpartyID: counterpartyID,
		PaymentTerms:   terms,
	}
	doc.Totals.GrandTotal = total
	return doc
}

func customer(id int64, name string) counterparties.Counterparty {
	return counterparties.Counterparty{ID: id, TenantID: 1, Role: counterparties.RoleCustomer, Name: name}
}

func paymentFor(counterpartyID, invoiceID int64, amount float64) *payments.Payment {
	return &payments.Payment{
		TenantID:       1,
		CounterpartyID: counterpartyID,
		Date:           time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Lines:          []payments.Line{{InvoiceID: invoiceID, Amount: amount}},
	}
}

func newBalanceService(docs *fakeDocStore, pays *fakePayStore, parties *fakePartyStore, cache *Cache) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, docs, pays, parties, cache)
}

var refDate = time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

func TestComputeBalancesCompleteness(t *testing.T) {
	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 500),
	}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{
		customer(10, "Atlas SARL"),
		customer(11, "Borealis"),
		customer(12, "Cap Nord"),
	}}
	svc := newBalanceService(docs, &fakePayStore{}, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Len(t, report.Balances, 3)

	require.Equal(t, int64(10), report.Balances[0].CounterpartyID)
	require.Equal(t, 500.0, report.Balances[0].SoldeDu)
	require.Equal(t, 0.0, report.Balances[1].SoldeDu)
	require.Equal(t, 0.0, report.Balances[2].SoldeDu)
	require.Equal(t, 500.0, report.GrandTotal)
}

func TestComputeBalancesAgingAndPayments(t *testing.T) {
	docs := &fakeDocStore{docs: []documents.Document{
		// Due 2024-01-01, 45 days past due at the reference date.
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 1000),
	}}
	pays := &fakePayStore{payments: []*payments.Payment{paymentFor(10, 1, 400)}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "Atlas SARL")}}
	svc := newBalanceService(docs, pays, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Len(t, report.Balances, 1)

	entry := report.Balances[0]
	require.Equal(t, 600.0, entry.SoldeDu)
	require.Equal(t, 600.0, entry.Buckets.Days31To60)
	require.Len(t, entry.OpenInvoices, 1)
	require.Equal(t, "31-60", entry.OpenInvoices[0].Bucket)
	require.Equal(t, 45, entry.OpenInvoices[0].DaysPastDue)
}

func TestComputeBalancesCreditNotesNotAged(t *testing.T) {
	cn := invoice(2, 10, "AV-000002", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "", 150)
	cn.Kind = documents.KindCreditNote
	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 1000),
		cn,
	}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "Atlas SARL")}}
	svc := newBalanceService(docs, &fakePayStore{}, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)

	entry := report.Balances[0]
	require.Equal(t, 850.0, entry.SoldeDu)
	// The invoice ages at its full remaining value; the credit note only
	// reduces the total.
	require.Equal(t, 1000.0, entry.Buckets.Days31To60)
	require.Len(t, entry.OpenInvoices, 1)
}

func TestComputeBalancesExcludesCancelledAndSettled(t *testing.T) {
	cancelled := invoice(2, 10, "FAC-000002", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), "", 700)
	cancelled.Status = documents.StatusCancelled
	settled := invoice(3, 10, "FAC-000003", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), "comptant", 200)
	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 1000),
		cancelled,
		settled,
	}}
	pays := &fakePayStore{payments: []*payments.Payment{paymentFor(10, 3, 200)}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "Atlas SARL")}}
	svc := newBalanceService(docs, pays, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)

	entry := report.Balances[0]
	// Cancelled invoice is invisible; the settled one still counts toward
	// the total but is not listed.
	require.Equal(t, 1000.0, entry.SoldeDu)
	require.Len(t, entry.OpenInvoices, 1)
	require.Equal(t, "FAC-000001", entry.OpenInvoices[0].Number)
}

func TestComputeBalancesSortOrder(t *testing.T) {
	cn := invoice(4, 13, "AV-000004", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "", 300)
	cn.Kind = documents.KindCreditNote
	cn2 := invoice(5, 14, "AV-000005", time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), "", 50)
	cn2.Kind = documents.KindCreditNote
	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 200),
		invoice(2, 11, "FAC-000002", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "comptant", 900),
		cn, cn2,
	}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{
		customer(10, "Atlas SARL"),
		customer(11, "Borealis"),
		customer(12, "Cap Nord"),
		customer(13, "Delta"),
		customer(14, "Echo"),
	}}
	svc := newBalanceService(docs, &fakePayStore{}, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Len(t, report.Balances, 5)

	// Positives descending, then zero, then negatives nearest zero first.
	require.Equal(t, 900.0, report.Balances[0].SoldeDu)
	require.Equal(t, 200.0, report.Balances[1].SoldeDu)
	require.Equal(t, 0.0, report.Balances[2].SoldeDu)
	require.Equal(t, -50.0, report.Balances[3].SoldeDu)
	require.Equal(t, -300.0, report.Balances[4].SoldeDu)
	require.Equal(t, 1100.0, report.GrandTotal)
}

func TestComputeBalancesAdvanceIsInformational(t *testing.T) {
	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 1000),
	}}
	banked := &payments.Payment{
		TenantID: 1, CounterpartyID: 10, IsOnAccount: true,
		Date:  time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Lines: []payments.Line{{Amount: 500}},
	}
	consumed := &payments.Payment{
		TenantID: 1, CounterpartyID: 10, AdvanceUsed: 200,
		Date:  time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		Lines: []payments.Line{{InvoiceID: 1, Amount: 200}},
	}
	pays := &fakePayStore{payments: []*payments.Payment{banked, consumed}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "Atlas SARL")}}
	svc := newBalanceService(docs, pays, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)

	entry := report.Balances[0]
	// The 200 applied through the advance already lowered the invoice; the
	// remaining 300 of credit must not lower it again.
	require.Equal(t, 800.0, entry.SoldeDu)
	require.Equal(t, 300.0, entry.NetAdvanceBalance)
}

func TestComputeBalancesMissingName(t *testing.T) {
	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 100),
	}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "")}}
	svc := newBalanceService(docs, &fakePayStore{}, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Equal(t, UnknownCounterpartyName, report.Balances[0].Name)
}

func TestGetReportCachesUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	cache := NewCache(client, time.Minute)

	docs := &fakeDocStore{docs: []documents.Document{
		invoice(1, 10, "FAC-000001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "comptant", 500),
	}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "Atlas SARL")}}
	svc := newBalanceService(docs, &fakePayStore{}, parties, cache)

	first, err := svc.GetReport(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Equal(t, 500.0, first.GrandTotal)
	loads := docs.calls

	second, err := svc.GetReport(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Equal(t, first.GrandTotal, second.GrandTotal)
	require.Equal(t, loads, docs.calls)

	require.NoError(t, cache.Bump(context.Background()))

	_, err = svc.GetReport(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Greater(t, docs.calls, loads)
}

func TestComputeBalancesExcludesArchivedProvisional(t *testing.T) {
	// After a conversion the provisional invoice is archived and its
	// payments point at the official document; only the official one may
	// carry the debt.
	provisional := invoice(1, 10, "FP-000001", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "comptant", 1000)
	provisional.Kind = documents.KindInternalInvoice
	provisional.Status = documents.StatusArchived
	official := invoice(2, 10, "FAC-000001", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "comptant", 1000)

	docs := &fakeDocStore{docs: []documents.Document{provisional, official}}
	pays := &fakePayStore{payments: []*payments.Payment{paymentFor(10, 2, 400)}}
	parties := &fakePartyStore{parties: []counterparties.Counterparty{customer(10, "Atlas SARL")}}
	svc := newBalanceService(docs, pays, parties, nil)

	report, err := svc.ComputeBalances(context.Background(), 1, 0, refDate)
	require.NoError(t, err)
	require.Len(t, report.Balances, 1)

	entry := report.Balances[0]
	require.Equal(t, 600.0, entry.SoldeDu)
	require.Len(t, entry.OpenInvoices, 1)
	require.Equal(t, int64(2), entry.OpenInvoices[0].InvoiceID)
	require.Equal(t, 600.0, report.GrandTotal)
}
