package documents

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Kind enumerates commercial document kinds.
type Kind string

const (
	KindQuote           Kind = "QUOTE"
	KindSalesOrder      Kind = "SALES_ORDER"
	KindDeliveryNote    Kind = "DELIVERY_NOTE"
	KindSalesInvoice    Kind = "SALES_INVOICE"
	KindInternalInvoice Kind = "INTERNAL_INVOICE"
	KindCreditNote      Kind = "CREDIT_NOTE"
	KindPurchaseOrder   Kind = "PURCHASE_ORDER"
	KindGoodsReceipt    Kind = "GOODS_RECEIPT"
	KindPurchaseInvoice Kind = "PURCHASE_INVOICE"
	KindReturnNote      Kind = "RETURN_NOTE"
)

// Status enumerates document statuses.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusValidated Status = "VALIDATED"
	StatusCancelled Status = "CANCELLED"
	StatusPaid      Status = "PAID"
	StatusArchived  Status = "ARCHIVED"
)

// Line is one line item embedded in a document. Service lines carry no
// product reference.
type Line struct {
	ProductRef   shared.ProductRef `json:"productRef"`
	Label        string            `json:"label,omitempty"`
	Quantity     float64           `json:"quantity"`
	UnitPriceHT  float64           `json:"unitPriceHT"`
	DiscountPct  float64           `json:"discountPct"`
	TaxPct       float64           `json:"taxPct"`
	LevyPct      *float64          `json:"levyPct,omitempty"`
	DeliveredQty float64           `json:"deliveredQty"`
}

// Totals groups the computed monetary fields of a document.
type Totals struct {
	BaseHT     float64 `json:"baseHT"`
	TaxAmount  float64 `json:"taxAmount"`
	LevyAmount float64 `json:"levyAmount"`
	StampDuty  float64 `json:"stampDuty"`
	GrandTotal float64 `json:"grandTotal"`
}

// Link records a relation to another document (invoice from delivery note,
// credit note from invoice, official invoice from internal invoice).
type Link struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// Document is a commercial document of any kind.
type Document struct {
	ID                int64     `json:"id"`
	TenantID          int64     `json:"tenantId"`
	Kind              Kind      `json:"kind"`
	Number            string    `json:"number"`
	Status            Status    `json:"status"`
	Date              time.Time `json:"date"`
	CounterpartyID    int64     `json:"counterpartyId"`
	Lines             []Line    `json:"lines"`
	GlobalDiscountPct float64   `json:"globalDiscountPct"`
	LevyEnabled       bool      `json:"levyEnabled"`
	LevyRatePct       float64   `json:"levyRatePct"`
	StampDuty         float64   `json:"stampDuty"`
	Totals            Totals    `json:"totals"`
	PaymentTerms      string    `json:"paymentTerms,omitempty"`
	Links             []Link    `json:"links,omitempty"`
	Notes             []string  `json:"notes,omitempty"`
	CreatedBy         string    `json:"createdBy"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// IsSalesKind reports whether the document faces a customer.
func (k Kind) IsSalesKind() bool {
	switch k {
	case KindQuote, KindSalesOrder, KindDeliveryNote, KindSalesInvoice, KindInternalInvoice, KindCreditNote:
		return true
	}
	return false
}

// IsInvoiceKind reports whether the document carries a payable balance.
func (k Kind) IsInvoiceKind() bool {
	switch k {
	case KindSalesInvoice, KindInternalInvoice, KindPurchaseInvoice:
		return true
	}
	return false
}

// HasStockEffect reports whether validating the document should touch the
// inventory ledger.
func (k Kind) HasStockEffect() bool {
	switch k {
	case KindSalesInvoice, KindDeliveryNote, KindPurchaseInvoice, KindGoodsReceipt, KindReturnNote:
		return true
	}
	return false
}

// LinkedID returns the id of the first link of the given kind, or zero.
func (d *Document) LinkedID(kind Kind) int64 {
	for _, l := range d.Links {
		if l.Kind == kind {
			return l.ID
		}
	}
	return 0
}
