package products

import "time"

// Product is a catalogue entry. Service products carry Stocked=false and
// never touch the inventory ledger.
type Product struct {
	ID        int64
	TenantID  int64
	Code      string
	Name      string
	UnitPrice float64
	TaxPct    float64
	Stocked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
