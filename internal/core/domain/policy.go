package domain

// Capability names an action a caller may be allowed to perform.
type Capability string

const (
	CapManageCatalog     Capability = "catalog:manage"
	CapPlaceOrder        Capability = "orders:place"
	CapListOrders        Capability = "orders:list"
	CapChangeOrderStatus Capability = "orders:change-status"
	CapViewAnalytics     Capability = "orders:analytics"
)

var policy = map[Capability][]Role{
	CapManageCatalog:     {RoleSupplier, RoleAdmin},
	CapPlaceOrder:        {RoleBuyer},
	CapListOrders:        {RoleBuyer, RoleSupplier, RoleAdmin},
	CapChangeOrderStatus: {RoleAdmin},
	CapViewAnalytics:     {RoleAdmin},
}

// Can reports whether the role is granted the capability.
func (r Role) Can(c Capability) bool {
	for _, allowed := range policy[c] {
		if allowed == r {
			return true
		}
	}
	return false
}
