package authsdk

import (
	"context"
	"net/http"
)

// Login calls POST /user/login.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.call(ctx, http.MethodPost, "/user/login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminLogin calls POST /admin/login. Non-admins get 401.
func (c *SDKClient) AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.call(ctx, http.MethodPost, "/admin/login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// FederatedLogin exchanges a Google ID token for a session or MFA challenge.
func (c *SDKClient) FederatedLogin(ctx context.Context, idToken string) (*LoginResponse, error) {
	var out LoginResponse
	req := FederatedLoginRequest{IDToken: idToken}
	if err := c.call(ctx, http.MethodPost, "/user/federated-login", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA calls POST /mfa/verify.
func (c *SDKClient) VerifyMFA(ctx context.Context, req VerifyMFARequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.call(ctx, http.MethodPost, "/mfa/verify", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword emails a reset code.
func (c *SDKClient) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*MessageResponse, error) {
	return c.message(ctx, "/user/forgot-password", req)
}

// VerifyResetCode checks a reset code without using it.
func (c *SDKClient) VerifyResetCode(ctx context.Context, req VerifyResetCodeRequest) (*MessageResponse, error) {
	return c.message(ctx, "/user/verify-otp", req)
}

// ResetPassword sets a new password using a reset code.
func (c *SDKClient) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	return c.message(ctx, "/user/reset-password", req)
}

func (c *SDKClient) message(ctx context.Context, path string, body any) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.call(ctx, http.MethodPost, path, "", body, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrganization registers an organization, optionally with its first
// admin.
func (c *SDKClient) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error) {
	var out OrganizationResponse
	if err := c.call(ctx, http.MethodPost, "/organization/create", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}
