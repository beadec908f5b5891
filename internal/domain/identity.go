package domain

// CustomerID keys cart and checkout state. It is either an account id or an
// anonymous token issued to the browser session.
type CustomerID string

const RoleAdministrator = "Administrator"

// Principal is the already-authenticated caller as seen by the core.
type Principal struct {
	Customer      CustomerID
	Authenticated bool
	Roles         []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanViewAllOrders is the only role-dependent decision; it is taken once at
// the HTTP boundary.
func (p Principal) CanViewAllOrders() bool {
	return p.Authenticated && p.HasRole(RoleAdministrator)
}
