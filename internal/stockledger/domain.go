package stockledger

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

// MovementType encodes the direction of a stock movement. Quantities are
// always positive; direction lives here.
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// Movement is one inventory ledger entry. At most one movement exists per
// (tenant, product, source kind, source id): it is created on first need and
// updated in place afterwards.
type Movement struct {
	ID          int64          `json:"id"`
	TenantID    int64          `json:"tenantId"`
	ProductID   int64          `json:"productId"`
	WarehouseID int64          `json:"warehouseId,omitempty"`
	Type        MovementType   `json:"type"`
	Quantity    float64        `json:"quantity"`
	Date        time.Time      `json:"date"`
	SourceKind  documents.Kind `json:"sourceKind"`
	SourceID    int64          `json:"sourceId"`
	Code        string         `json:"code"`
	Note        string         `json:"note,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// DirectionFor maps a document kind to its ledger direction. Returns cannot
// appear here: a return note always books IN regardless of origin.
func DirectionFor(kind documents.Kind) (MovementType, bool) {
	switch kind {
	case documents.KindSalesInvoice, documents.KindDeliveryNote:
		return MovementOut, true
	case documents.KindPurchaseInvoice, documents.KindGoodsReceipt, documents.KindReturnNote:
		return MovementIn, true
	}
	return "", false
}
