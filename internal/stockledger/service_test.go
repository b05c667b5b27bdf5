package stockledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeMovementRepo struct {
	movements map[string]*Movement
}

func newFakeMovementRepo() *fakeMovementRepo {
	return &fakeMovementRepo{movements: map[string]*Movement{}}
}

func movementKey(tenantID int64, kind documents.Kind, sourceID, productID int64) string {
	return fmt.Sprintf("%d/%s/%d/%d", tenantID, kind, sourceID, productID)
}

func (f *fakeMovementRepo) Upsert(_ context.Context, m *Movement) error {
	f.movements[movementKey(m.TenantID, m.SourceKind, m.SourceID, m.ProductID)] = m
	return nil
}

func (f *fakeMovementRepo) DeleteBySourceAndProduct(_ context.Context, tenantID int64, kind documents.Kind, sourceID, productID int64) error {
	delete(f.movements, movementKey(tenantID, kind, sourceID, productID))
	return nil
}

func (f *fakeMovementRepo) DeleteBySource(_ context.Context, tenantID int64, kind documents.Kind, sourceID int64) error {
	for k, m := range f.movements {
		if m.TenantID == tenantID && m.SourceKind == kind && m.SourceID == sourceID {
			delete(f.movements, k)
		}
	}
	return nil
}

func (f *fakeMovementRepo) GetBySourceAndProduct(_ context.Context, tenantID int64, kind documents.Kind, sourceID, productID int64) (*Movement, error) {
	if m, ok := f.movements[movementKey(tenantID, kind, sourceID, productID)]; ok {
		return m, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeMovementRepo) CountBySource(_ context.Context, tenantID int64, kind documents.Kind, sourceID int64) (int, error) {
	n := 0
	for _, m := range f.movements {
		if m.TenantID == tenantID && m.SourceKind == kind && m.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}

type fakeProductLookup struct {
	byCode map[string]*products.Product
	byID   map[int64]*products.Product
}

func (f *fakeProductLookup) GetByRef(_ context.Context, _ int64, ref shared.ProductRef) (*products.Product, error) {
	if ref.ID != 0 {
		if p, ok := f.byID[ref.ID]; ok {
			return p, nil
		}
		return nil, shared.ErrNotFound
	}
	if p, ok := f.byCode[ref.Code]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

type fakeDeliveryPort struct {
	adjusted map[string]float64
	notes    []string
}

func (f *fakeDeliveryPort) AdjustDeliveredQty(_ context.Context, _ int64, id int64, ref shared.ProductRef, delta float64) error {
	if f.adjusted == nil {
		f.adjusted = map[string]float64{}
	}
	f.adjusted[fmt.Sprintf("%d/%s", id, ref.Key())] += delta
	return nil
}

func (f *fakeDeliveryPort) AppendNote(_ context.Context, _ int64, _ int64, note string) error {
	f.notes = append(f.notes, note)
	return nil
}

type countingMetrics struct{ failures int }

func (c *countingMetrics) IncSyncFailure() { c.failures = c.failures + 1 }

func testProducts() *fakeProductLookup {
	widget := &products.Product{ID: 11, Code: "WID-1", Name: "Widget", Stocked: true}
	gasket := &products.Product{ID: 12, Code: "GSK-1", Name: "Gasket", Stocked: true}
	labor := &products.Product{ID: 13, Code: "SRV-1", Name: "Install labor", Stocked: false}
	return &fakeProductLookup{
		byID:   map[int64]*products.Product{11: widget, 12: gasket, 13: labor},
		byCode: map[string]*products.Product{"WID-1": widget, "GSK-1": gasket, "SRV-1": labor},
	}
}

func newTestService(repo *fakeMovementRepo, lookup *fakeProductLookup, deliveries *fakeDeliveryPort, metrics *countingMetrics) *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, lookup, deliveries, metrics)
}

func salesInvoice(lines ...documents.Line) *documents.Document {
	return &documents.Document{
		ID:       100,
		TenantID: 1,
		Kind:     documents.KindSalesInvoice,
		Number:   "FAC-000100",
		Status:   documents.StatusValidated,
		Date:     time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		Lines:    lines,
	}
}

func TestSyncForDocumentCreatesOutMovements(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	doc := salesInvoice(
		documents.Line{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 3, UnitPriceHT: 10},
		documents.Line{ProductRef: shared.ProductRef{Code: "GSK-1"}, Quantity: 2, UnitPriceHT: 5},
	)

	require.NoError(t, svc.SyncForDocument(context.Background(), doc, nil))
	require.Len(t, repo.movements, 2)

	m := repo.movements[movementKey(1, documents.KindSalesInvoice, 100, 11)]
	require.NotNil(t, m)
	require.Equal(t, MovementOut, m.Type)
	require.Equal(t, 3.0, m.Quantity)
	require.Equal(t, doc.Date, m.Date)
}

func TestSyncForDocumentSkipsServiceLines(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	doc := salesInvoice(
		documents.Line{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 1},
		documents.Line{ProductRef: shared.ProductRef{Code: "SRV-1"}, Quantity: 4},
		documents.Line{Label: "Shipping", Quantity: 1},
	)

	require.NoError(t, svc.SyncForDocument(context.Background(), doc, nil))
	require.Len(t, repo.movements, 1)
	require.NotNil(t, repo.movements[movementKey(1, documents.KindSalesInvoice, 100, 11)])
}

func TestSyncForDocumentUpdateReconciles(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	before := []documents.Line{
		{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 3},
		{ProductRef: shared.ProductRef{Code: "GSK-1"}, Quantity: 2},
	}
	doc := salesInvoice(before...)
	require.NoError(t, svc.SyncForDocument(context.Background(), doc, nil))

	// The gasket line disappears and the widget quantity changes.
	doc.Lines = []documents.Line{
		{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 7},
	}
	require.NoError(t, svc.SyncForDocument(context.Background(), doc, before))

	require.Len(t, repo.movements, 1)
	m := repo.movements[movementKey(1, documents.KindSalesInvoice, 100, 11)]
	require.NotNil(t, m)
	require.Equal(t, 7.0, m.Quantity)
}

func TestSyncForDocumentZeroQuantityRemovesMovement(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	before := []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 3}}
	doc := salesInvoice(before...)
	require.NoError(t, svc.SyncForDocument(context.Background(), doc, nil))
	require.Len(t, repo.movements, 1)

	doc.Lines = []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 0}}
	require.NoError(t, svc.SyncForDocument(context.Background(), doc, before))
	require.Empty(t, repo.movements)
}

func TestSyncForDocumentInvoiceAfterDeliverySkips(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	dn := &documents.Document{
		ID:       50,
		TenantID: 1,
		Kind:     documents.KindDeliveryNote,
		Number:   "BL-000050",
		Date:     time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC),
		Lines:    []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 5}},
	}
	require.NoError(t, svc.SyncForDocument(context.Background(), dn, nil))
	require.Len(t, repo.movements, 1)

	inv := salesInvoice(documents.Line{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 5})
	inv.Links = []documents.Link{{Kind: documents.KindDeliveryNote, ID: 50}}

	require.NoError(t, svc.SyncForDocument(context.Background(), inv, nil))

	// Only the delivery note movement exists; the invoice must not double it.
	require.Len(t, repo.movements, 1)
	require.NotNil(t, repo.movements[movementKey(1, documents.KindDeliveryNote, 50, 11)])
}

func TestSyncForDocumentInvoiceWithoutDeliveryBooks(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	inv := salesInvoice(documents.Line{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 5})
	inv.Links = []documents.Link{{Kind: documents.KindDeliveryNote, ID: 50}}

	// The linked note never moved stock, so the invoice does.
	require.NoError(t, svc.SyncForDocument(context.Background(), inv, nil))
	require.Len(t, repo.movements, 1)
	require.NotNil(t, repo.movements[movementKey(1, documents.KindSalesInvoice, 100, 11)])
}

func TestSyncForDocumentUnknownProductSkipsLine(t *testing.T) {
	repo := newFakeMovementRepo()
	metrics := &countingMetrics{}
	svc := newTestService(repo, testProducts(), nil, metrics)

	doc := salesInvoice(
		documents.Line{ProductRef: shared.ProductRef{Code: "NOPE"}, Quantity: 2},
		documents.Line{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 1},
	)

	require.NoError(t, svc.SyncForDocument(context.Background(), doc, nil))
	require.Len(t, repo.movements, 1)
	require.Equal(t, 1, metrics.failures)
}

func TestSyncForDocumentReturnNote(t *testing.T) {
	repo := newFakeMovementRepo()
	deliveries := &fakeDeliveryPort{}
	svc := newTestService(repo, testProducts(), deliveries, nil)

	ret := &documents.Document{
		ID:       200,
		TenantID: 1,
		Kind:     documents.KindReturnNote,
		Number:   "BR-000200",
		Date:     time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
		Lines:    []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 2}},
		Links:    []documents.Link{{Kind: documents.KindDeliveryNote, ID: 50}},
	}

	require.NoError(t, svc.SyncForDocument(context.Background(), ret, nil))

	m := repo.movements[movementKey(1, documents.KindReturnNote, 200, 11)]
	require.NotNil(t, m)
	require.Equal(t, MovementIn, m.Type)
	require.Equal(t, 2.0, m.Quantity)

	require.Equal(t, -2.0, deliveries.adjusted["50/code:WID-1"])
	require.Len(t, deliveries.notes, 1)
	require.Contains(t, deliveries.notes[0], "BR-000200")
}

func TestSyncForDocumentReturnNoteResyncIsIdempotent(t *testing.T) {
	repo := newFakeMovementRepo()
	deliveries := &fakeDeliveryPort{}
	svc := newTestService(repo, testProducts(), deliveries, nil)

	ret := &documents.Document{
		ID:       200,
		TenantID: 1,
		Kind:     documents.KindReturnNote,
		Number:   "BR-000200",
		Date:     time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
		Lines:    []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 2}},
		Links:    []documents.Link{{Kind: documents.KindDeliveryNote, ID: 50}},
	}

	require.NoError(t, svc.SyncForDocument(context.Background(), ret, nil))
	// The reconcile sweep replays validated documents without a snapshot;
	// the delivery note must not be debited again.
	require.NoError(t, svc.SyncForDocument(context.Background(), ret, nil))

	m := repo.movements[movementKey(1, documents.KindReturnNote, 200, 11)]
	require.NotNil(t, m)
	require.Equal(t, 2.0, m.Quantity)
	require.Equal(t, -2.0, deliveries.adjusted["50/code:WID-1"])
	require.Len(t, deliveries.notes, 1)
}

func TestSyncForDocumentReturnNoteQuantityChangeAppliesDelta(t *testing.T) {
	repo := newFakeMovementRepo()
	deliveries := &fakeDeliveryPort{}
	svc := newTestService(repo, testProducts(), deliveries, nil)

	before := []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 2}}
	ret := &documents.Document{
		ID:       200,
		TenantID: 1,
		Kind:     documents.KindReturnNote,
		Number:   "BR-000200",
		Date:     time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
		Lines:    before,
		Links:    []documents.Link{{Kind: documents.KindDeliveryNote, ID: 50}},
	}
	require.NoError(t, svc.SyncForDocument(context.Background(), ret, nil))

	ret.Lines = []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 3}}
	require.NoError(t, svc.SyncForDocument(context.Background(), ret, before))

	m := repo.movements[movementKey(1, documents.KindReturnNote, 200, 11)]
	require.NotNil(t, m)
	require.Equal(t, 3.0, m.Quantity)
	require.Equal(t, -3.0, deliveries.adjusted["50/code:WID-1"])
	require.Len(t, deliveries.notes, 2)
}

func TestSyncForDocumentReturnNoteRemovedLineRestoresDelivery(t *testing.T) {
	repo := newFakeMovementRepo()
	deliveries := &fakeDeliveryPort{}
	svc := newTestService(repo, testProducts(), deliveries, nil)

	before := []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 2}}
	ret := &documents.Document{
		ID:       200,
		TenantID: 1,
		Kind:     documents.KindReturnNote,
		Number:   "BR-000200",
		Date:     time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
		Lines:    before,
		Links:    []documents.Link{{Kind: documents.KindDeliveryNote, ID: 50}},
	}
	require.NoError(t, svc.SyncForDocument(context.Background(), ret, nil))
	require.Equal(t, -2.0, deliveries.adjusted["50/code:WID-1"])

	ret.Lines = nil
	require.NoError(t, svc.SyncForDocument(context.Background(), ret, before))

	require.Empty(t, repo.movements)
	require.Equal(t, 0.0, deliveries.adjusted["50/code:WID-1"])
}

func TestSyncForDocumentNoStockEffectKind(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	quote := &documents.Document{
		ID:       300,
		TenantID: 1,
		Kind:     documents.KindQuote,
		Lines:    []documents.Line{{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 9}},
	}
	require.NoError(t, svc.SyncForDocument(context.Background(), quote, nil))
	require.Empty(t, repo.movements)
}

func TestDeleteForDocument(t *testing.T) {
	repo := newFakeMovementRepo()
	svc := newTestService(repo, testProducts(), nil, nil)

	doc := salesInvoice(
		documents.Line{ProductRef: shared.ProductRef{Code: "WID-1"}, Quantity: 3},
		documents.Line{ProductRef: shared.ProductRef{Code: "GSK-1"}, Quantity: 2},
	)
	require.NoError(t, svc.SyncForDocument(context.Background(), doc, nil))
	require.Len(t, repo.movements, 2)

	require.NoError(t, svc.DeleteForDocument(context.Background(), 1, doc.Kind, doc.ID))
	require.Empty(t, repo.movements)
}
