package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Session is an authenticated client. Tokens are not refreshed; after
// ExpiresAt the caller logs in again.
type Session struct {
	client *SDKClient

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	user      *User
}

// Token returns the bearer token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt is the token expiry reported at login, zero if unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// User returns the user from the login response, if any.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) call(ctx context.Context, method, path string, body, target any) error {
	return s.client.call(ctx, method, path, s.Token(), body, target, http.StatusOK)
}

// UpdateProfile changes the caller's display name.
func (s *Session) UpdateProfile(ctx context.Context, name string) (*User, error) {
	var out UserResponse
	if err := s.call(ctx, http.MethodPut, "/user/update", UpdateProfileRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = &out.User
	s.mu.Unlock()
	return &out.User, nil
}

// Logout revokes the session token on the server.
func (s *Session) Logout(ctx context.Context) error {
	return s.call(ctx, http.MethodPost, "/user/logout", nil, &MessageResponse{})
}

// ToggleMFA sets the caller's emailed second factor; nil flips it.
func (s *Session) ToggleMFA(ctx context.Context, enabled *bool) (*User, error) {
	var out ToggleMFAResponse
	if err := s.call(ctx, http.MethodPost, "/mfa/toggle", ToggleMFARequest{Enabled: enabled}, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// EnrollTOTP starts authenticator enrolment.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	var out TOTPEnrollResponse
	if err := s.call(ctx, http.MethodPost, "/mfa/totp/enroll", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTOTP finishes enrolment with a code from the authenticator.
func (s *Session) ConfirmTOTP(ctx context.Context, code string) (*User, error) {
	var out UserResponse
	if err := s.call(ctx, http.MethodPost, "/mfa/totp/confirm", TOTPConfirmRequest{Code: code}, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// CreateUser adds a user to the caller's organization. Requires admin.
func (s *Session) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var out UserResponse
	err := s.client.call(ctx, http.MethodPost, "/admin/create-users", s.Token(), req, &out, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ListUsers returns the caller's organization. Requires admin.
func (s *Session) ListUsers(ctx context.Context) ([]User, error) {
	var out UsersResponse
	if err := s.call(ctx, http.MethodGet, "/admin/get-users", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DeleteUser removes a user. Requires admin.
func (s *Session) DeleteUser(ctx context.Context, userID string) error {
	return s.call(ctx, http.MethodDelete, "/admin/delete-users/"+url.PathEscape(userID), nil, &MessageResponse{})
}

// SetUserMFA sets another user's emailed second factor; nil flips it.
func (s *Session) SetUserMFA(ctx context.Context, userID string, enabled *bool) (*User, error) {
	var out UserResponse
	req := AdminToggleMFARequest{UserID: userID, Enabled: enabled}
	if err := s.call(ctx, http.MethodPost, "/admin/toggle-mfa", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// UpdateRole changes a user's role. Requires admin.
func (s *Session) UpdateRole(ctx context.Context, userID, role string) (*User, error) {
	var out UserResponse
	req := UpdateRoleRequest{UserID: userID, Role: role}
	if err := s.call(ctx, http.MethodPut, "/admin/update-role", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// UpdateAccess replaces a user's access list. Requires admin.
func (s *Session) UpdateAccess(ctx context.Context, userID string, access []string) (*User, error) {
	if access == nil {
		access = []string{}
	}
	var out UserResponse
	req := UpdateAccessRequest{UserID: userID, Access: access}
	if err := s.call(ctx, http.MethodPut, "/admin/update-access", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// AddDomain sets a domain label on the caller's organization.
func (s *Session) AddDomain(ctx context.Context, req AddDomainRequest) (*Organization, error) {
	var out OrganizationResponse
	if err := s.call(ctx, http.MethodPost, "/organization/domain/add", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// RemoveDomain deletes a domain label from the caller's organization.
func (s *Session) RemoveDomain(ctx context.Context, req RemoveDomainRequest) (*Organization, error) {
	var out OrganizationResponse
	if err := s.call(ctx, http.MethodDelete, "/organization/domain/remove", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}
