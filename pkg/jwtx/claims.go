package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is the lifetime of a session token when nothing else is
// configured.
const DefaultSessionTTL = 12 * time.Hour

// Claims are the session-token claims shared by every service that trusts
// this issuer. The user id travels in the registered "sub" claim.
type Claims struct {
	jwt.RegisteredClaims

	// OrganizationID the user belongs to.
	OrganizationID string `json:"org"`

	Email string `json:"email"`

	// Role is one of admin, developer or user.
	Role string `json:"role"`
}

// NewSessionClaims builds claims for a freshly authenticated user.
func NewSessionClaims(
	userID, organizationID, email, role string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		OrganizationID: organizationID,
		Email:          email,
		Role:           role,
	}
}

// NewJTI returns a random identifier for the "jti" claim. Revocation is keyed
// on it so it has to be unique per token.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiryAt ensures the token hasn't expired (exp) and isn't before
// nbf at the given instant.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}

	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateIdentity makes sure the claims carry everything a principal needs.
func (c *Claims) ValidateIdentity() error {
	if c.Subject == "" || c.OrganizationID == "" || c.Role == "" || c.ID == "" {
		return ErrInvalidClaim
	}
	return nil
}

// Expiry returns the expiry instant, or the zero time when unset.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
