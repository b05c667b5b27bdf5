package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestRecomputeInvoiceLinesWaterfall(t *testing.T) {
	first := &Payment{ID: 1, Date: day(1), Lines: []Line{{InvoiceID: 9, Amount: 400}}}
	second := &Payment{ID: 2, Date: day(5), Lines: []Line{{InvoiceID: 9, Amount: 300}}}

	// Deliberately out of order; the scan must sort oldest first.
	paid := RecomputeInvoiceLines([]*Payment{second, first}, 9, 1000)

	require.Equal(t, 700.0, paid)
	require.Equal(t, 0.0, first.Lines[0].AmountPaidBefore)
	require.Equal(t, 600.0, first.Lines[0].RemainingBalance)
	require.Equal(t, 400.0, second.Lines[0].AmountPaidBefore)
	require.Equal(t, 300.0, second.Lines[0].RemainingBalance)
}

func TestRecomputeInvoiceLinesAfterDeletion(t *testing.T) {
	second := &Payment{ID: 2, Date: day(5), Lines: []Line{
		{InvoiceID: 9, Amount: 300, AmountPaidBefore: 400, RemainingBalance: 300},
	}}

	// The first payment is gone; prior-paid falls back to zero.
	paid := RecomputeInvoiceLines([]*Payment{second}, 9, 1000)

	require.Equal(t, 300.0, paid)
	require.Equal(t, 0.0, second.Lines[0].AmountPaidBefore)
	require.Equal(t, 700.0, second.Lines[0].RemainingBalance)
}

func TestRecomputeInvoiceLinesSameDayOrderedByID(t *testing.T) {
	a := &Payment{ID: 1, Date: day(3), Lines: []Line{{InvoiceID: 9, Amount: 100}}}
	b := &Payment{ID: 2, Date: day(3), Lines: []Line{{InvoiceID: 9, Amount: 250}}}

	RecomputeInvoiceLines([]*Payment{b, a}, 9, 500)

	require.Equal(t, 0.0, a.Lines[0].AmountPaidBefore)
	require.Equal(t, 100.0, b.Lines[0].AmountPaidBefore)
	require.Equal(t, 150.0, b.Lines[0].RemainingBalance)
}

func TestRecomputeInvoiceLinesIgnoresOtherInvoicesAndOnAccount(t *testing.T) {
	p := &Payment{ID: 1, Date: day(1), Lines: []Line{
		{InvoiceID: 9, Amount: 100},
		{InvoiceID: 8, Amount: 50},
		{OnAccount: true, Amount: 75},
	}}

	paid := RecomputeInvoiceLines([]*Payment{p}, 9, 200)

	require.Equal(t, 100.0, paid)
	require.Equal(t, 100.0, p.Lines[0].RemainingBalance)
	// Untouched lines keep their stored figures.
	require.Equal(t, 0.0, p.Lines[1].AmountPaidBefore)
}

func TestPaidTotal(t *testing.T) {
	payments := []*Payment{
		{ID: 1, Date: day(1), Lines: []Line{{InvoiceID: 9, Amount: 400}, {OnAccount: true, Amount: 100}}},
		{ID: 2, Date: day(2), Lines: []Line{{InvoiceID: 9, Amount: 300}}},
		{ID: 3, Date: day(3), IsOnAccount: true, Lines: []Line{{InvoiceID: 9, Amount: 999}}},
	}
	require.Equal(t, 700.0, PaidTotal(payments, 9))
}

func TestNetAdvanceBalance(t *testing.T) {
	payments := []*Payment{
		{ID: 1, IsOnAccount: true, Lines: []Line{{Amount: 500}}},
		{ID: 2, AdvanceUsed: 200, Lines: []Line{{InvoiceID: 9, Amount: 200}}},
	}
	require.Equal(t, 300.0, NetAdvanceBalance(payments))
}
