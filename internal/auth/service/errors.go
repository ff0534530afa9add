package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
)

// Error kinds. Handlers map these to status codes with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidChallenge   = errors.New("invalid or expired code")
)

// Error pairs one of the kinds above with a message that is safe to show
// to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrUserNotFound         = &Error{Kind: ErrNotFound, Message: "user not found"}
	ErrOrganizationNotFound = &Error{Kind: ErrNotFound, Message: "organization not found"}
	ErrDomainNotFound       = &Error{Kind: ErrNotFound, Message: "domain not found"}
	ErrEmailTaken           = &Error{Kind: ErrConflict, Message: "email already registered"}
	ErrLastAdmin            = &Error{Kind: ErrInvariantViolation, Message: "cannot remove last admin"}
	ErrAdminRequired        = &Error{Kind: ErrForbidden, Message: "admin access required"}
	ErrOtherOrganization    = &Error{Kind: ErrForbidden, Message: "user belongs to another organization"}
	ErrOrganizationRequired = &Error{Kind: ErrValidation, Message: "organization id required"}
	ErrOrganizationMismatch = &Error{Kind: ErrForbidden, Message: "organization does not match your account"}

	errTokenExpired = &Error{Kind: ErrUnauthenticated, Message: "token expired"}
	errTokenInvalid = &Error{Kind: ErrUnauthenticated, Message: "invalid token"}
	errTokenRevoked = &Error{Kind: ErrUnauthenticated, Message: "token revoked"}
)

// passwordError turns a password policy violation into a validation error.
func passwordError(err error) error {
	switch {
	case errors.Is(err, cryptox.ErrPasswordTooShort):
		return validationError("password must be at least %d characters", cryptox.MinPasswordLength)
	case errors.Is(err, cryptox.ErrPasswordTooLong):
		return validationError("password must be at most %d bytes", cryptox.MaxPasswordLength)
	default:
		return err
	}
}
