package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// errorStatus maps a service error kind to a status and the message used
// when the error carries none of its own.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, httpx.ErrBadJSON):
		return http.StatusBadRequest, "Invalid request body"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusBadRequest, "Already exists"
	case errors.Is(err, service.ErrInvariantViolation):
		return http.StatusBadRequest, "Operation not allowed"
	case errors.Is(err, service.ErrInvalidChallenge):
		return http.StatusUnauthorized, "Invalid or expired OTP"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError renders err as {success:false,error}. Unknown errors are
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)

	if status == http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		msg = svcErr.Message
	}
	authsdk.NewAPIError(status, msg).WriteError(w)
}

// writeResetError is writeError for the password reset flow, where a bad
// code is a client error rather than failed authentication.
func writeResetError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrInvalidChallenge) {
		authsdk.NewAPIError(http.StatusBadRequest, "Invalid or expired OTP").WriteError(w)
		return
	}
	writeError(w, r, err)
}
