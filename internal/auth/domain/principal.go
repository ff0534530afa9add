package domain

import "time"

// Principal is the identity recovered from a verified session token.
type Principal struct {
	UserID         string
	OrganizationID string
	Email          string
	Role           Role
	TokenID        string
	ExpiresAt      time.Time
}

// HasRole reports whether the principal holds one of allowed. An empty list
// admits any role.
func (p Principal) HasRole(allowed ...Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if p.Role == r {
			return true
		}
	}
	return false
}
