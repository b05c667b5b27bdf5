package shared

import (
	"strconv"
	"strings"
)

// ProductRef is the single identifier shape used for product references on
// document lines. Imported documents carry either the numeric product id or
// its catalogue code; Normalize is the one place that decides which.
type ProductRef struct {
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
}

// NormalizeProductRef parses a raw reference into its canonical form. A value
// consisting only of digits is treated as a product id, anything else as a
// catalogue code. Empty input yields the zero ref (a service line).
func NormalizeProductRef(raw string) ProductRef {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ProductRef{}
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return ProductRef{ID: id}
	}
	return ProductRef{Code: raw}
}

// IsZero reports whether the ref carries no identifier at all.
func (r ProductRef) IsZero() bool {
	return r.ID == 0 && r.Code == ""
}

// Key returns a stable map key for diffing line sets by product.
func (r ProductRef) Key() string {
	if r.ID != 0 {
		return "id:" + strconv.FormatInt(r.ID, 10)
	}
	return "code:" + r.Code
}

// String renders the reference the way it was supplied.
func (r ProductRef) String() string {
	if r.ID != 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Code
}
