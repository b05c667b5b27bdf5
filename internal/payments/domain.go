package payments

import "time"

// Method is how the money moved.
type Method string

const (
	MethodCash     Method = "CASH"
	MethodCheck    Method = "CHECK"
	MethodTransfer Method = "TRANSFER"
	MethodCard     Method = "CARD"
	MethodOther    Method = "OTHER"
)

// Payment model. A payment can settle invoices, bank money on account,
// or do both: each line is either invoice-targeted or on-account. A
// positive AdvanceUsed means previously banked credit was consumed to
// pay invoices, on top of the fresh amount.
type Payment struct {
	ID             int64     `json:"id"`
	TenantID       int64     `json:"tenantId"`
	CounterpartyID int64     `json:"counterpartyId"`
	Number         string    `json:"number"`
	Date           time.Time `json:"date"`
	Method         Method    `json:"method"`
	Reference      string    `json:"reference,omitempty"`
	IsOnAccount    bool      `json:"isOnAccount"`
	AdvanceUsed    float64   `json:"advanceUsed"`
	Amount         float64   `json:"amount"`
	Lines          []Line    `json:"lines"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Line is one slice of a payment. InvoiceID is zero for on-account
// lines. AmountPaidBefore captures the cumulative prior payments at the
// moment the line was written and is recomputed when history changes.
type Line struct {
	ID               int64   `json:"id"`
	PaymentID        int64   `json:"paymentId"`
	InvoiceID        int64   `json:"invoiceId,omitempty"`
	InvoiceNumber    string  `json:"invoiceNumber,omitempty"`
	InvoiceTotal     float64 `json:"invoiceTotal"`
	Amount           float64 `json:"amount"`
	AmountPaidBefore float64 `json:"amountPaidBefore"`
	RemainingBalance float64 `json:"remainingBalance"`
	OnAccount        bool    `json:"onAccount"`
}

// IsOnAccountLine reports whether the line banks credit instead of
// settling an invoice, either by its own flag or the payment-wide one.
func (p *Payment) IsOnAccountLine(l Line) bool {
	return p.IsOnAccount || l.OnAccount || l.InvoiceID == 0
}

// OnAccountTotal sums the credit this payment banks.
func (p *Payment) OnAccountTotal() float64 {
	var total float64
	for _, l := range p.Lines {
		if p.IsOnAccountLine(l) {
			total += l.Amount
		}
	}
	return total
}
