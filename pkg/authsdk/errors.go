package authsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
)

// APIError is a failed request. The server writes it with WriteError and
// the client returns it from every method.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Message is the human-readable reason sent as "error"
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// WriteError writes the {success:false,error} body.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{Success: false, Error: e.Message})
}

// NewAPIError builds an APIError with the given status.
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message}
}

var (
	ErrBadRequest   = NewAPIError(http.StatusBadRequest, "Invalid request body")
	ErrUnauthorized = NewAPIError(http.StatusUnauthorized, "Authentication required")
	ErrServerError  = NewAPIError(http.StatusInternalServerError, "internal server error")
)

// StatusCode returns the HTTP status of an APIError, or 0 for other errors.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	return StatusCode(err) == status
}
