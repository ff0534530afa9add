package authsdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Envelopes
// ============================================================================

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MessageResponse acknowledges an operation that returns no data.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ============================================================================
// Users
// ============================================================================

// User is the public view of an account. It never carries credentials.
type User struct {
	ID           string       `json:"id"`
	OrgID        string       `json:"orgId"`
	Email        string       `json:"email"`
	Name         string       `json:"name,omitempty"`
	Role         string       `json:"role"`
	Access       []string     `json:"access"`
	MFAEnabled   bool         `json:"mfaEnabled"`
	TOTPEnabled  bool         `json:"totpEnabled"`
	LoginHistory []LoginEvent `json:"loginHistory,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

type LoginEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// UserResponse wraps a single user. Admin updates also set Message.
type UserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	User    User   `json:"user"`
}

// UsersResponse is the admin user listing.
type UsersResponse struct {
	Success bool   `json:"success"`
	Data    []User `json:"data"`
}

// ============================================================================
// Login
// ============================================================================

// LoginRequest is the body of POST /user/login and POST /admin/login.
// OrgID is only needed when the email is used in several organizations.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgID    string `json:"orgId,omitempty"`
}

// LoginResponse is either a session (Token set) or an MFA challenge
// (RequireMFA set).
type LoginResponse struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message,omitempty"`
	Token        string        `json:"token,omitempty"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
	User         *User         `json:"user,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
	RequireMFA   bool          `json:"requireMFA,omitempty"`
	UserID       string        `json:"userId,omitempty"`
}

// FederatedLoginRequest carries a Google ID token.
type FederatedLoginRequest struct {
	IDToken string `json:"idToken"`
}

// VerifyMFARequest redeems an MFA code. Either UserID (from the login
// response) or Email identifies the account. Code is also accepted as "otp".
type VerifyMFARequest struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	OrgID  string `json:"orgId,omitempty"`
	OTP    string `json:"otp"`
}

// ============================================================================
// Password reset
// ============================================================================

type ForgotPasswordRequest struct {
	Email string `json:"email"`
	OrgID string `json:"orgId,omitempty"`
}

type VerifyResetCodeRequest struct {
	Email string `json:"email"`
	OrgID string `json:"orgId,omitempty"`
	OTP   string `json:"otp"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OrgID       string `json:"orgId,omitempty"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// ============================================================================
// Self service
// ============================================================================

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// ToggleMFARequest sets the emailed second factor. A nil Enabled flips it.
type ToggleMFARequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// ToggleMFAResponse keeps the {status:"success"} shape existing clients
// expect.
type ToggleMFAResponse struct {
	Status string `json:"status"`
	User   User   `json:"user"`
}

// TOTPEnrollResponse contains the data to set up an authenticator app.
type TOTPEnrollResponse struct {
	Success bool   `json:"success"`
	Secret  string `json:"secret"`
	URL     string `json:"url"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

type TOTPConfirmRequest struct {
	Code string `json:"code"`
}

// ============================================================================
// Admin
// ============================================================================

// CreateUserRequest is the body of POST /admin/create-users. OrgID is
// optional and must match the caller's organization when given.
type CreateUserRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Name       string   `json:"name,omitempty"`
	OrgID      string   `json:"orgId,omitempty"`
	Role       string   `json:"role,omitempty"`
	Access     []string `json:"access,omitempty"`
	MFAEnabled bool     `json:"mfaEnabled,omitempty"`
}

type AdminToggleMFARequest struct {
	UserID  string `json:"userId"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type UpdateRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// UpdateAccessRequest replaces a user's access list. Access must be
// present; an empty array clears it.
type UpdateAccessRequest struct {
	UserID string   `json:"userId"`
	Access []string `json:"access"`
}

// ============================================================================
// Organizations
// ============================================================================

type Organization struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Domains   map[string]string `json:"domains"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// DomainMap maps a label (e.g. "Google") to a domain. It decodes from a
// JSON object or from an array of objects, which older clients send.
type DomainMap map[string]string

func (m *DomainMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := DomainMap{}

	switch {
	case bytes.Equal(data, []byte("null")):
		*m = nil
		return nil
	case len(data) > 0 && data[0] == '[':
		var list []map[string]string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("domains: %w", err)
		}
		for _, entry := range list {
			for label, value := range entry {
				out[label] = value
			}
		}
	default:
		var obj map[string]string
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("domains: %w", err)
		}
		for label, value := range obj {
			out[label] = value
		}
	}

	*m = out
	return nil
}

// AdminInput is the optional first administrator of a new organization.
type AdminInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name,omitempty"`
	MFAEnabled bool   `json:"mfaEnabled,omitempty"`
}

type CreateOrganizationRequest struct {
	Name    string      `json:"name"`
	Domains DomainMap   `json:"domains,omitempty"`
	Admin   *AdminInput `json:"admin,omitempty"`
}

type OrganizationResponse struct {
	Success bool         `json:"success"`
	Data    Organization `json:"data"`
	Admin   *User        `json:"admin,omitempty"`
}

// AddDomainRequest sets Name to Domain on the caller's organization.
type AddDomainRequest struct {
	OrgID  string `json:"orgId,omitempty"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type RemoveDomainRequest struct {
	OrgID string `json:"orgId,omitempty"`
	Name  string `json:"name"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database    string `json:"database"`
	Revocations string `json:"revocations,omitempty"`
}
