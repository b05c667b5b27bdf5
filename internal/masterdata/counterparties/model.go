package counterparties

import "time"

// Role distinguishes customers from suppliers.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSupplier Role = "SUPPLIER"
)

// Counterparty is a customer or supplier of the tenant.
type Counterparty struct {
	ID        int64
	TenantID  int64
	Role      Role
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
