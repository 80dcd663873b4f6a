package auth

import "strings"

type Role string

const (
	RoleParent  Role = "PARENT"
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// Capability is a single permission checked at route or service level.
type Capability string

const (
	CapDeposit     Capability = "deposit"
	CapSpend       Capability = "spend"
	CapManagePlans Capability = "manage_plans"
	CapViewLinked  Capability = "view_linked"
	CapBypassLinks Capability = "bypass_links"
	CapAdmin       Capability = "admin"
)

var capabilities = map[Role]map[Capability]bool{
	RoleParent: {
		CapDeposit:    true,
		CapViewLinked: true,
	},
	RoleStudent: {
		CapSpend:       true,
		CapManagePlans: true,
	},
	RoleAdmin: {
		CapDeposit:     true,
		CapViewLinked:  true,
		CapBypassLinks: true,
		CapAdmin:       true,
	},
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := capabilities[r]
	return r, ok
}

func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

func (r Role) String() string {
	return string(r)
}
