package domain

import (
	"slices"
	"strings"
	"time"
)

// LoginHistoryLimit caps how many login events are retained per user.
const LoginHistoryLimit = 50

type User struct {
	ID             string
	OrganizationID string
	Email          string // lower-cased
	Name           string
	PasswordHash   string // bcrypt
	Role           Role
	Access         []string
	MFAEnabled     bool

	// Pending one-time codes, nil when none is outstanding.
	MFAChallenge   *Challenge
	ResetChallenge *Challenge

	TOTPSecret  string // base32, set once enrolment starts
	TOTPEnabled bool   // true once the first code was confirmed

	ExternalID string // federated subject, empty until linked

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LoginEvent is one entry of a user's login history.
type LoginEvent struct {
	At time.Time `json:"timestamp"`
}

// PublicUser is the projection handed to clients. It never carries the
// password hash, challenge material or TOTP secret.
type PublicUser struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"orgId"`
	Email          string       `json:"email"`
	Name           string       `json:"name,omitempty"`
	Role           Role         `json:"role"`
	Access         []string     `json:"access"`
	MFAEnabled     bool         `json:"mfaEnabled"`
	TOTPEnabled    bool         `json:"totpEnabled"`
	LoginHistory   []LoginEvent `json:"loginHistory,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Public returns the client-safe view of u.
func (u User) Public() PublicUser {
	access := u.Access
	if access == nil {
		access = []string{}
	}
	return PublicUser{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Access:         access,
		MFAEnabled:     u.MFAEnabled,
		TOTPEnabled:    u.TOTPEnabled,
		CreatedAt:      u.CreatedAt,
	}
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeAccess trims, drops empties and removes duplicates while keeping
// the first-seen order for display.
func NormalizeAccess(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" || slices.Contains(out, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}
