package conversion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeDocStore struct {
	docs   map[int64]*documents.Document
	nextID int64
}

func newFakeDocStore(docs ...*documents.Document) *fakeDocStore {
	f := &fakeDocStore{docs: map[int64]*documents.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
		if d.ID > f.nextID {
			f.nextID = d.ID
		}
	}
	return f
}

func (f *fakeDocStore) Get(_ context.Context, tenantID, id int64) (*documents.Document, error) {
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocStore) Create(_ context.Context, doc *documents.Document) error {
	for _, d := range f.docs {
		if d.TenantID == doc.TenantID && d.Kind == doc.Kind && d.Number == doc.Number {
			return shared.ErrDuplicateNumber
		}
	}
	f.nextID++
	doc.ID = f.nextID
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocStore) Delete(_ context.Context, tenantID, id int64) error {
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocStore) FindLinkSource(_ context.Context, tenantID int64, kind documents.Kind, linkedID int64) (int64, error) {
	for _, d := range f.docs {
		if d.TenantID == tenantID && d.Kind == kind && d.LinkedID(documents.KindInternalInvoice) == linkedID {
			return d.ID, nil
		}
	}
	return 0, nil
}

func (f *fakeDocStore) LatestByKind(_ context.Context, tenantID int64, kind documents.Kind) (*documents.Document, error) {
	var latest *documents.Document
	for _, d := range f.docs {
		if d.TenantID != tenantID || d.Kind != kind {
			continue
		}
		if latest == nil || d.ID > latest.ID {
			latest = d
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	return latest, nil
}

func (f *fakeDocStore) UpdateStatus(_ context.Context, tenantID, id int64, from []documents.Status, to documents.Status) error {
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return shared.ErrImmutableState
	}
	for _, s := range from {
		if d.Status == s {
			d.Status = to
			return nil
		}
	}
	return shared.ErrImmutableState
}

func (f *fakeDocStore) AppendNote(_ context.Context, tenantID, id int64, note string) error {
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return shared.ErrNotFound
	}
	d.Notes = append(d.Notes, note)
	return nil
}

type fakeRebinder struct {
	calls       int
	transferred float64
	err         error
	lastOld     int64
	lastNew     int64
}

func (f *fakeRebinder) RebindInvoice(_ context.Context, _ int64, oldID int64, official *documents.Document) (float64, error) {
	f.calls++
	f.lastOld = oldID
	f.lastNew = official.ID
	return f.transferred, f.err
}

type fakeStockSync struct {
	synced []int64
}

func (f *fakeStockSync) SyncForDocument(_ context.Context, doc *documents.Document, _ []documents.Line) error {
	f.synced = append(f.synced, doc.ID)
	return nil
}

type fakeSequence struct{ n int }

func (f *fakeSequence) Next(_ context.Context, _ int64, key string) (string, error) {
	f.n++
	return key + "-000001", nil
}

func provisionalInvoice(id int64) *documents.Document {
	doc := &documents.Document{
		ID:             id,
		TenantID:       1,
		Kind:           documents.KindInternalInvoice,
		Number:         "FP-000007",
		Status:         documents.StatusValidated,
		Date:           time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		CounterpartyID: 7,
		Lines: []documents.Line{
			{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 2, UnitPriceHT: 100, TaxPct: 19},
		},
		PaymentTerms: "30 jours",
	}
	documents.ComputeTotals(doc)
	return doc
}

func newConversionService(store *fakeDocStore, rebinder *fakeRebinder, stock *fakeStockSync) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, store, rebinder, stock, nil, &fakeSequence{}, nil)
	svc.now = func() time.Time { return time.Date(2024, 4, 2, 15, 30, 0, 0, time.UTC) }
	return svc
}

func TestConvertPromotesProvisional(t *testing.T) {
	prov := provisionalInvoice(5)
	last := &documents.Document{ID: 3, TenantID: 1, Kind: documents.KindSalesInvoice, Number: "FAC-000041", Status: documents.StatusPaid}
	store := newFakeDocStore(prov, last)
	rebinder := &fakeRebinder{transferred: 150}
	stock := &fakeStockSync{}
	svc := newConversionService(store, rebinder, stock)

	official, err := svc.Convert(context.Background(), 1, 5)
	require.NoError(t, err)

	require.Equal(t, documents.KindSalesInvoice, official.Kind)
	require.Equal(t, "FAC-000042", official.Number)
	require.Equal(t, documents.StatusValidated, official.Status)
	require.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), official.Date)
	require.Equal(t, int64(5), official.LinkedID(documents.KindInternalInvoice))

	// Totals are recomputed, not copied blindly.
	require.Equal(t, prov.Totals.GrandTotal, official.Totals.GrandTotal)
	require.Greater(t, official.Totals.GrandTotal, 0.0)

	require.Equal(t, documents.StatusArchived, prov.Status)
	require.Len(t, prov.Notes, 1)
	require.Contains(t, prov.Notes[0], "FAC-000042")
	require.Contains(t, prov.Notes[0], "150.00")

	require.Equal(t, int64(5), rebinder.lastOld)
	require.Equal(t, official.ID, rebinder.lastNew)
	require.Equal(t, []int64{official.ID}, stock.synced)
}

func TestConvertFallsBackToSequence(t *testing.T) {
	prov := provisionalInvoice(5)
	store := newFakeDocStore(prov)
	svc := newConversionService(store, &fakeRebinder{}, &fakeStockSync{})

	official, err := svc.Convert(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, "SALES_INVOICE-000001", official.Number)
}

func TestConvertTwiceFailsAlreadyConverted(t *testing.T) {
	prov := provisionalInvoice(5)
	store := newFakeDocStore(prov)
	stock := &fakeStockSync{}
	svc := newConversionService(store, &fakeRebinder{}, stock)

	_, err := svc.Convert(context.Background(), 1, 5)
	require.NoError(t, err)

	_, err = svc.Convert(context.Background(), 1, 5)
	require.ErrorIs(t, err, shared.ErrAlreadyConverted)

	// No second official document, no duplicate stock sync.
	officials := 0
	for _, d := range store.docs {
		if d.Kind == documents.KindSalesInvoice {
			officials++
		}
	}
	require.Equal(t, 1, officials)
	require.Len(t, stock.synced, 1)
}

func TestConvertWrongKindIsNotFound(t *testing.T) {
	quote := provisionalInvoice(5)
	quote.Kind = documents.KindQuote
	store := newFakeDocStore(quote)
	svc := newConversionService(store, &fakeRebinder{}, &fakeStockSync{})

	_, err := svc.Convert(context.Background(), 1, 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConvertMissingDocument(t *testing.T) {
	svc := newConversionService(newFakeDocStore(), &fakeRebinder{}, &fakeStockSync{})
	_, err := svc.Convert(context.Background(), 1, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConvertRollsBackOnRebindFailure(t *testing.T) {
	prov := provisionalInvoice(5)
	store := newFakeDocStore(prov)
	rebinder := &fakeRebinder{err: errors.New("payment store down")}
	svc := newConversionService(store, rebinder, &fakeStockSync{})

	_, err := svc.Convert(context.Background(), 1, 5)
	require.Error(t, err)

	// The half-created official document is gone and the provisional one
	// is untouched.
	for _, d := range store.docs {
		require.NotEqual(t, documents.KindSalesInvoice, d.Kind)
	}
	require.Equal(t, documents.StatusValidated, prov.Status)
	require.Empty(t, prov.Notes)
}
