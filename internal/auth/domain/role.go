package domain

import (
	"errors"
	"strings"
)

// Role is the coarse permission level a user holds inside their organization.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
)

var ErrUnknownRole = errors.New("domain: unknown role")

// ParseRole accepts any casing and defaults an empty string to RoleUser.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RoleUser, nil
	case RoleAdmin, RoleDeveloper, RoleUser:
		return r, nil
	default:
		return "", ErrUnknownRole
	}
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDeveloper || r == RoleUser
}

func (r Role) String() string { return string(r) }
