package balances

import "time"

// UnknownCounterpartyName labels counterparties whose record lacks a name.
const UnknownCounterpartyName = "(sans nom)"

// Buckets splits an owed amount by how long it has been past due.
type Buckets struct {
	Days0To30  float64 `json:"days0to30"`
	Days31To60 float64 `json:"days31to60"`
	Days61To90 float64 `json:"days61to90"`
	Over90     float64 `json:"over90"`
}

// OpenInvoice is one invoice still carrying a positive remaining balance.
type OpenInvoice struct {
	InvoiceID   int64     `json:"invoiceId"`
	Number      string    `json:"number"`
	Date        time.Time `json:"date"`
	DueDate     time.Time `json:"dueDate"`
	Total       float64   `json:"total"`
	Paid        float64   `json:"paid"`
	Remaining   float64   `json:"remaining"`
	Bucket      string    `json:"bucket"`
	DaysPastDue int       `json:"daysPastDue"`
}

// CounterpartyBalance is the reconstructed position of one counterparty.
// SoldeDu is signed: positive means they owe us (or we owe them on the
// supplier side), negative means credit in their favour.
type CounterpartyBalance struct {
	CounterpartyID    int64         `json:"counterpartyId"`
	Name              string        `json:"name"`
	SoldeDu           float64       `json:"soldeDu"`
	Buckets           Buckets       `json:"buckets"`
	OpenInvoices      []OpenInvoice `json:"openInvoices"`
	CreditNotes       float64       `json:"creditNotes"`
	NetAdvanceBalance float64       `json:"netAdvanceBalance"`
}

// Report is the tenant-wide balance snapshot. GrandTotal sums only the
// positive balances, what is actually owed, not the net of everyone.
type Report struct {
	ReferenceDate time.Time             `json:"referenceDate"`
	Balances      []CounterpartyBalance `json:"balances"`
	GrandTotal    float64               `json:"grandTotal"`
	GeneratedAt   time.Time             `json:"generatedAt"`
}
