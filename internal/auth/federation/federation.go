// Package federation verifies identity assertions from external providers.
package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

var (
	ErrInvalidAssertion = errors.New("federation: invalid assertion")
	ErrEmailUnverified  = errors.New("federation: email not verified")
	ErrDisabled         = errors.New("federation: provider not configured")
)

// Identity is what the service needs from a verified assertion.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type Verifier interface {
	Verify(ctx context.Context, assertion string) (Identity, error)
}

// GoogleVerifier validates Google ID tokens issued for ClientID.
type GoogleVerifier struct {
	ClientID string

	// Validate defaults to idtoken.Validate, which fetches and caches
	// Google's signing certificates.
	Validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{ClientID: clientID, Validate: idtoken.Validate}
}

func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (Identity, error) {
	if v.ClientID == "" {
		return Identity{}, ErrDisabled
	}
	assertion = strings.TrimSpace(assertion)
	if assertion == "" {
		return Identity{}, ErrInvalidAssertion
	}

	payload, err := v.Validate(ctx, assertion, v.ClientID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	switch payload.Issuer {
	case "accounts.google.com", "https://accounts.google.com":
	default:
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidAssertion, payload.Issuer)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" || payload.Subject == "" {
		return Identity{}, ErrInvalidAssertion
	}
	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return Identity{}, ErrEmailUnverified
	}

	name, _ := payload.Claims["name"].(string)
	return Identity{Subject: payload.Subject, Email: email, Name: name}, nil
}

// Disabled rejects every assertion; used when no client id is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string) (Identity, error) {
	return Identity{}, ErrDisabled
}
