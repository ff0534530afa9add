package service

import (
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/pkg/jwtx"
)

// Session is a signed bearer token and the moment it stops being accepted.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionIssuer signs session tokens for authenticated users.
type SessionIssuer struct {
	Signer jwtx.Signer
	Issuer string
	TTL    time.Duration
}

func (s *SessionIssuer) Issue(u domain.User, now time.Time) (Session, error) {
	claims := jwtx.NewSessionClaims(u.ID, u.OrganizationID, u.Email, u.Role.String(), s.TTL, s.Issuer, now)
	token, err := s.Signer.Sign(claims)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: claims.Expiry()}, nil
}
