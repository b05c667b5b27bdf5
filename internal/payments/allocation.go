package payments

import (
	"math"
	"sort"
)

// round2 keeps monetary figures at two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RecomputeInvoiceLines rebuilds AmountPaidBefore and RemainingBalance
// for every line targeting invoiceID, walking payments oldest first so
// cumulative figures stay consistent after an edit, deletion or
// re-parenting. It mutates the passed payments and returns the total
// paid against the invoice.
func RecomputeInvoiceLines(payments []*Payment, invoiceID int64, invoiceTotal float64) float64 {
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].Date.Equal(payments[j].Date) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].Date.Before(payments[j].Date)
	})

	var cumulative float64
	for _, p := range payments {
		for i := range p.Lines {
			l := &p.Lines[i]
			if p.IsOnAccountLine(*l) || l.InvoiceID != invoiceID {
				continue
			}
			l.AmountPaidBefore = round2(cumulative)
			cumulative += l.Amount
			l.InvoiceTotal = invoiceTotal
			l.RemainingBalance = round2(math.Max(0, invoiceTotal-cumulative))
		}
	}
	return round2(cumulative)
}

// PaidTotal sums the invoice-targeted amounts against one invoice.
func PaidTotal(payments []*Payment, invoiceID int64) float64 {
	var total float64
	for _, p := range payments {
		for _, l := range p.Lines {
			if p.IsOnAccountLine(l) || l.InvoiceID != invoiceID {
				continue
			}
			total += l.Amount
		}
	}
	return round2(total)
}

// NetAdvanceBalance is the credit still banked for a counterparty:
// on-account contributions minus consumed advances. Informational only;
// invoice balances already reflect advance consumption through their
// paid amounts, so this figure must never be subtracted from them again.
func NetAdvanceBalance(payments []*Payment) float64 {
	var banked, used float64
	for _, p := range payments {
		banked += p.OnAccountTotal()
		used += p.AdvanceUsed
	}
	return round2(banked - used)
}
