package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient calls the tenantauth HTTP API. Unauthenticated operations live
// on the client; a Session adds the bearer token for the rest.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client with a 10 second request timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AuthenticateWithPassword logs in and returns a session. When the account
// has MFA enabled the session is nil and the response carries RequireMFA;
// finish with CompleteMFA.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, req LoginRequest) (*Session, *LoginResponse, error) {
	resp, err := c.Login(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if resp.RequireMFA {
		return nil, resp, nil
	}
	return c.NewSession(resp), resp, nil
}

// CompleteMFA redeems the emailed (or authenticator) code for a session.
func (c *SDKClient) CompleteMFA(ctx context.Context, req VerifyMFARequest) (*Session, error) {
	resp, err := c.VerifyMFA(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.NewSession(resp), nil
}

// NewSession wraps the token of a successful login.
func (c *SDKClient) NewSession(resp *LoginResponse) *Session {
	s := &Session{client: c, token: resp.Token}
	if resp.ExpiresAt != nil {
		s.expiresAt = *resp.ExpiresAt
	}
	if resp.User != nil {
		u := *resp.User
		s.user = &u
	}
	return s
}

// NewSessionFromToken builds a session around a token obtained elsewhere.
func (c *SDKClient) NewSessionFromToken(token string) *Session {
	return &Session{client: c, token: token}
}
