package domain

import "time"

// ChallengeKind tells the two one-time code flows apart.
type ChallengeKind string

const (
	ChallengeMFA   ChallengeKind = "mfa"
	ChallengeReset ChallengeKind = "reset"
)

// MaxChallengeAttempts is how many codes may be checked against one
// challenge. The challenge is dropped once they are spent.
const MaxChallengeAttempts = 5

// Challenge is a pending one-time code. Only the fingerprint of the code is
// ever stored.
type Challenge struct {
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int // codes already checked against it
}

// ActiveAt reports whether the challenge can still be redeemed at now.
func (c *Challenge) ActiveAt(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt) && c.Attempts < MaxChallengeAttempts
}

// TOTPEnrollment is returned when a user starts authenticator enrolment.
type TOTPEnrollment struct {
	Secret  string `json:"secret"`  // base32 encoded
	URL     string `json:"url"`     // otpauth:// URL for QR rendering
	Issuer  string `json:"issuer"`  // service name shown in the app
	Account string `json:"account"` // user email
}
