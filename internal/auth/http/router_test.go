package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/federation"
	authhttp "github.com/aussiebroadwan/tenantauth/internal/auth/http"
	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/notify"
	"github.com/aussiebroadwan/tenantauth/internal/auth/revoke"
	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
	"github.com/aussiebroadwan/tenantauth/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIssuer   = "tenantauth-test"
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Password123!"
)

// Handler tests issue many credential requests from one address, so the
// shared profiles are relaxed. TestRateLimitLogin builds its own router
// with the strict profile restored.
func TestMain(m *testing.M) {
	relaxed := httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}
	httpx.StrictLimit = relaxed
	httpx.ModerateLimit = relaxed
	httpx.LenientLimit = relaxed
	os.Exit(m.Run())
}

type fakeFederation map[string]federation.Identity

func (f fakeFederation) Verify(_ context.Context, assertion string) (federation.Identity, error) {
	id, ok := f[assertion]
	if !ok {
		return federation.Identity{}, federation.ErrInvalidAssertion
	}
	return id, nil
}

type testServer struct {
	srv     *httptest.Server
	client  *authsdk.SDKClient
	mail    *notify.Recorder
	metrics *metrics.Metrics
	fed     fakeFederation
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewSignerHS256([]byte(testSecret))
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256([]byte(testSecret), testIssuer)
	require.NoError(t, err)

	hasher := cryptox.NewHasher(bcrypt.MinCost, 4)
	mail := &notify.Recorder{}
	m := metrics.New()
	fed := fakeFederation{}
	revocations := revoke.NewStoreList(st)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := authhttp.NewRouter("test", st, nil, m, []string{"https://app.techcorp.com"}, logger)
	router.AuthService = &service.AuthService{
		Store:       st,
		Hasher:      hasher,
		Sessions:    &service.SessionIssuer{Signer: signer, Issuer: testIssuer, TTL: jwtx.DefaultSessionTTL},
		Codes:       &service.OTPIssuer{Store: st, Notifier: mail, Metrics: m},
		Federation:  fed,
		Revocations: revocations,
		Metrics:     m,
	}
	router.AdminService = &service.AdminService{Store: st, Hasher: hasher}
	router.OrganizationService = &service.OrganizationService{Store: st, Hasher: hasher}
	router.MFAService = &service.MFAService{Store: st, Issuer: "TenantAuth"}
	router.Authorizer = &service.Authorizer{Verifier: verifier, Revocations: revocations}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		srv:     srv,
		client:  authsdk.NewSDKClient(srv.URL),
		mail:    mail,
		metrics: m,
		fed:     fed,
	}
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (s *testServer) lastCode(t *testing.T, email string) string {
	t.Helper()

	msg, ok := s.mail.Last(email)
	require.True(t, ok, "no message sent to %s", email)
	m := codePattern.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2, "no code in %q", msg.Body)
	return m[1]
}

// newOrg creates TechCorp with an admin and returns the admin's session.
func (s *testServer) newOrg(t *testing.T) (*authsdk.OrganizationResponse, *authsdk.Session) {
	t.Helper()
	ctx := context.Background()

	org, err := s.client.CreateOrganization(ctx, authsdk.CreateOrganizationRequest{
		Name:    "TechCorp Solutions",
		Domains: authsdk.DomainMap{"Google": "techcorp.com", "Internal": "internal.techcorp.com"},
		Admin:   &authsdk.AdminInput{Email: "admin@techcorp.com", Password: testPassword, Name: "Admin User"},
	})
	require.NoError(t, err)

	session, resp, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email:    "admin@techcorp.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.False(t, resp.RequireMFA)
	return org, session
}

// do sends a raw request for checks the SDK hides, such as exact bodies.
func (s *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func TestCreateOrganization(t *testing.T) {
	s := newTestServer(t)

	org, _ := s.newOrg(t)
	assert.True(t, org.Success)
	assert.Equal(t, "TechCorp Solutions", org.Data.Name)
	assert.Equal(t, "techcorp.com", org.Data.Domains["Google"])
	require.NotNil(t, org.Admin)
	assert.Equal(t, "admin", org.Admin.Role)
	assert.Equal(t, org.Data.ID, org.Admin.OrgID)

	t.Run("array domains", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/organization/create", "",
			`{"name":"Acme","domains":[{"Google":"acme.com"},{"Internal":"internal.acme.com"}]}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		assert.Contains(t, body, `"internal.acme.com"`)
		assert.NotContains(t, body, `"admin"`)
	})

	t.Run("missing name", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/organization/create", "", `{"domains":{}}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"success":false,"error":"organization name is required"}`, body)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, body := s.do(t, http.MethodPost, "/organization/create", "", `{"name":`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"success":false,"error":"Invalid request body"}`, body)
	})
}

func TestLoginWithEmailedCode(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, admin := s.newOrg(t)

	_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Email:      "Developer@TechCorp.com",
		Password:   testPassword,
		Name:       "Dev",
		Role:       "developer",
		MFAEnabled: true,
	})
	require.NoError(t, err)

	session, resp, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email:    "developer@techcorp.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.Nil(t, session)
	require.True(t, resp.RequireMFA)
	assert.Equal(t, "MFA code has been sent to your email", resp.Message)
	assert.Empty(t, resp.Token)

	code := s.lastCode(t, "developer@techcorp.com")
	assert.Contains(t, s.mail.Messages()[len(s.mail.Messages())-1].Body, "This code will expire in 2 minutes.")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: wrong})
	assert.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	session, err = s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: code})
	require.NoError(t, err)
	require.NotNil(t, session.User())
	assert.Equal(t, "developer", session.User().Role)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), session.ExpiresAt(), time.Minute)
	require.NotEmpty(t, session.User().LoginHistory)

	// The code is single use.
	_, err = s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: code})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid or expired OTP", apiErr.Message)

	// Verification by email works the same way.
	_, resp, err = s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email:    "developer@techcorp.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	session, err = s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{
		Email: "developer@techcorp.com",
		OTP:   s.lastCode(t, "developer@techcorp.com"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token())
}

func TestMFACodeStopsWorkingAfterFailedAttempts(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, admin := s.newOrg(t)

	_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Email: "dev@techcorp.com", Password: testPassword, MFAEnabled: true,
	})
	require.NoError(t, err)

	_, resp, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "dev@techcorp.com", Password: testPassword,
	})
	require.NoError(t, err)
	code := s.lastCode(t, "dev@techcorp.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := range domain.MaxChallengeAttempts {
		_, err = s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: wrong})
		require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err), "attempt %d", i+1)
	}

	_, err = s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: code})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid or expired OTP", apiErr.Message)

	// Logging in again sends a fresh code with a fresh allowance.
	_, _, err = s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "dev@techcorp.com", Password: testPassword,
	})
	require.NoError(t, err)
	session, err := s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{
		UserID: resp.UserID, OTP: s.lastCode(t, "dev@techcorp.com"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token())
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.newOrg(t)

	tests := []struct {
		name   string
		body   string
		status int
		error  string
	}{
		{"wrong password", `{"email":"admin@techcorp.com","password":"nope-nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown email", `{"email":"ghost@techcorp.com","password":"Password123!"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"missing password", `{"email":"admin@techcorp.com"}`, http.StatusBadRequest, "email and password are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, "/user/login", "", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			assert.JSONEq(t, `{"success":false,"error":"`+tt.error+`"}`, body)
		})
	}
}

func TestAdminLogin(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	org, admin := s.newOrg(t)

	resp, err := s.client.AdminLogin(ctx, authsdk.LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	require.NotNil(t, resp.Organization)
	assert.Equal(t, org.Data.ID, resp.Organization.ID)
	assert.NotEmpty(t, resp.Token)

	_, err = admin.CreateUser(ctx, authsdk.CreateUserRequest{Email: "user1@techcorp.com", Password: testPassword})
	require.NoError(t, err)

	_, err = s.client.AdminLogin(ctx, authsdk.LoginRequest{Email: "user1@techcorp.com", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))
	_, sent := s.mail.Last("user1@techcorp.com")
	assert.False(t, sent)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, admin := s.newOrg(t)

	_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{Email: "user1@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	user, _, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email:    "user1@techcorp.com",
		Password: testPassword,
	})
	require.NoError(t, err)

	_, err = user.ListUsers(ctx)
	assert.Equal(t, http.StatusForbidden, authsdk.StatusCode(err))

	resp, body := s.do(t, http.MethodGet, "/admin/get-users", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"missing bearer token"}`, body)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp, body = s.do(t, http.MethodGet, "/admin/get-users", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"invalid token"}`, body)
}

func TestAdminUserManagement(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	org, admin := s.newOrg(t)

	created, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Email:    "user2@techcorp.com",
		Password: testPassword,
		Access:   []string{"Google", "Internal"},
	})
	require.NoError(t, err)
	assert.Equal(t, "user", created.Role)
	assert.Equal(t, []string{"Google", "Internal"}, created.Access)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{Email: "USER2@techcorp.com", Password: testPassword})
		assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))
	})

	t.Run("other organization id", func(t *testing.T) {
		_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
			Email: "x@techcorp.com", Password: testPassword, OrgID: "someone-else",
		})
		assert.Equal(t, http.StatusForbidden, authsdk.StatusCode(err))
	})

	t.Run("same organization id", func(t *testing.T) {
		_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
			Email: "y@techcorp.com", Password: testPassword, OrgID: org.Data.ID,
		})
		assert.NoError(t, err)
	})

	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	on := true
	u, err := admin.SetUserMFA(ctx, created.ID, &on)
	require.NoError(t, err)
	assert.True(t, u.MFAEnabled)
	u, err = admin.SetUserMFA(ctx, created.ID, nil)
	require.NoError(t, err)
	assert.False(t, u.MFAEnabled)

	u, err = admin.UpdateRole(ctx, created.ID, "developer")
	require.NoError(t, err)
	assert.Equal(t, "developer", u.Role)

	_, err = admin.UpdateRole(ctx, created.ID, "owner")
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	u, err = admin.UpdateAccess(ctx, created.ID, []string{})
	require.NoError(t, err)
	assert.Empty(t, u.Access)

	require.NoError(t, admin.DeleteUser(ctx, created.ID))
	err = admin.DeleteUser(ctx, created.ID)
	assert.Equal(t, http.StatusNotFound, authsdk.StatusCode(err))
}

func TestLastAdminIsProtected(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	org, admin := s.newOrg(t)

	resp, body := s.do(t, http.MethodDelete, "/admin/delete-users/"+org.Admin.ID, admin.Token(), "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"cannot remove last admin"}`, body)

	_, err := admin.UpdateRole(ctx, org.Admin.ID, "user")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "cannot remove last admin", apiErr.Message)

	second, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Email: "admin2@techcorp.com", Password: testPassword, Role: "admin",
	})
	require.NoError(t, err)
	require.NoError(t, admin.DeleteUser(ctx, second.ID))
}

func TestCrossOrganizationAccessIsForbidden(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, techcorp := s.newOrg(t)

	_, err := s.client.CreateOrganization(ctx, authsdk.CreateOrganizationRequest{
		Name:  "Acme",
		Admin: &authsdk.AdminInput{Email: "admin@acme.com", Password: testPassword},
	})
	require.NoError(t, err)
	acme, _, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "admin@acme.com", Password: testPassword,
	})
	require.NoError(t, err)

	victim, err := techcorp.CreateUser(ctx, authsdk.CreateUserRequest{Email: "user1@techcorp.com", Password: testPassword})
	require.NoError(t, err)

	err = acme.DeleteUser(ctx, victim.ID)
	assert.Equal(t, http.StatusForbidden, authsdk.StatusCode(err))
	_, err = acme.UpdateRole(ctx, victim.ID, "admin")
	assert.Equal(t, http.StatusForbidden, authsdk.StatusCode(err))

	users, err := acme.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin@acme.com", users[0].Email)
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, admin := s.newOrg(t)
	_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{Email: "user2@techcorp.com", Password: testPassword})
	require.NoError(t, err)

	msg, err := s.client.ForgotPassword(ctx, authsdk.ForgotPasswordRequest{Email: "user2@techcorp.com"})
	require.NoError(t, err)
	assert.Equal(t, "Password reset OTP sent to your email", msg.Message)

	code := s.lastCode(t, "user2@techcorp.com")

	_, err = s.client.VerifyResetCode(ctx, authsdk.VerifyResetCodeRequest{Email: "user2@techcorp.com", OTP: "12345"})
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	msg, err = s.client.VerifyResetCode(ctx, authsdk.VerifyResetCodeRequest{Email: "user2@techcorp.com", OTP: code})
	require.NoError(t, err)
	assert.Equal(t, "OTP verified successfully", msg.Message)

	_, err = s.client.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		Email: "user2@techcorp.com", OTP: code, NewPassword: "short",
	})
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	msg, err = s.client.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		Email: "user2@techcorp.com", OTP: code, NewPassword: "NewPassword456!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Password reset successful", msg.Message)

	_, err = s.client.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		Email: "user2@techcorp.com", OTP: code, NewPassword: "Another789!",
	})
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	_, _, err = s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{Email: "user2@techcorp.com", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))
	session, _, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "user2@techcorp.com", Password: "NewPassword456!",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token())

	sent := len(s.mail.Messages())
	_, err = s.client.ForgotPassword(ctx, authsdk.ForgotPasswordRequest{Email: "ghost@techcorp.com"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "user not found", apiErr.Message)
	assert.Len(t, s.mail.Messages(), sent)
}

func TestResetCodeStopsWorkingAfterFailedAttempts(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.newOrg(t)

	_, err := s.client.ForgotPassword(ctx, authsdk.ForgotPasswordRequest{Email: "admin@techcorp.com"})
	require.NoError(t, err)
	code := s.lastCode(t, "admin@techcorp.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := range domain.MaxChallengeAttempts {
		_, err = s.client.VerifyResetCode(ctx, authsdk.VerifyResetCodeRequest{Email: "admin@techcorp.com", OTP: wrong})
		require.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err), "attempt %d", i+1)
	}

	_, err = s.client.VerifyResetCode(ctx, authsdk.VerifyResetCodeRequest{Email: "admin@techcorp.com", OTP: code})
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))
	_, err = s.client.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		Email: "admin@techcorp.com", OTP: code, NewPassword: "NewPassword456!",
	})
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	_, _, err = s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "admin@techcorp.com", Password: testPassword,
	})
	require.NoError(t, err)
}

func TestLoginInvalidatesPendingResetCode(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.newOrg(t)

	_, err := s.client.ForgotPassword(ctx, authsdk.ForgotPasswordRequest{Email: "admin@techcorp.com"})
	require.NoError(t, err)
	code := s.lastCode(t, "admin@techcorp.com")

	_, _, err = s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "admin@techcorp.com", Password: testPassword,
	})
	require.NoError(t, err)

	_, err = s.client.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		Email: "admin@techcorp.com", OTP: code, NewPassword: "NewPassword456!",
	})
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))
}

func TestSelfService(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, admin := s.newOrg(t)

	u, err := admin.UpdateProfile(ctx, "Renamed Admin")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Admin", u.Name)

	_, err = admin.UpdateProfile(ctx, "  ")
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	resp, body := s.do(t, http.MethodPost, "/mfa/toggle", admin.Token(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"success"`)
	assert.Contains(t, body, `"mfaEnabled":true`)

	off := false
	u, err = admin.ToggleMFA(ctx, &off)
	require.NoError(t, err)
	assert.False(t, u.MFAEnabled)

	require.NoError(t, admin.Logout(ctx))
	_, err = admin.ListUsers(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "token revoked", apiErr.Message)
}

func TestTOTPEnrollment(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, admin := s.newOrg(t)

	enrollment, err := admin.EnrollTOTP(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))
	assert.Equal(t, "admin@techcorp.com", enrollment.Account)

	_, err = admin.ConfirmTOTP(ctx, "")
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	u, err := admin.ConfirmTOTP(ctx, code)
	require.NoError(t, err)
	assert.True(t, u.TOTPEnabled)
	assert.True(t, u.MFAEnabled)

	// Login now stops at the second factor, which the authenticator satisfies.
	_, resp, err := s.client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{
		Email: "admin@techcorp.com", Password: testPassword,
	})
	require.NoError(t, err)
	require.True(t, resp.RequireMFA)

	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	session, err := s.client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: code})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token())
}

func TestFederatedLogin(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.newOrg(t)

	s.fed["good-token"] = federation.Identity{Subject: "google-1", Email: "admin@techcorp.com"}
	s.fed["stranger"] = federation.Identity{Subject: "google-2", Email: "ghost@techcorp.com"}

	resp, err := s.client.FederatedLogin(ctx, "good-token")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	// Federated login never creates accounts.
	_, err = s.client.FederatedLogin(ctx, "stranger")
	assert.Equal(t, http.StatusNotFound, authsdk.StatusCode(err))

	_, err = s.client.FederatedLogin(ctx, "forged")
	assert.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	_, err = s.client.FederatedLogin(ctx, "")
	assert.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))
}

func TestOrganizationDomains(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	org, admin := s.newOrg(t)

	updated, err := admin.AddDomain(ctx, authsdk.AddDomainRequest{Name: "Microsoft", Domain: "techcorp.onmicrosoft.com"})
	require.NoError(t, err)
	assert.Equal(t, "techcorp.onmicrosoft.com", updated.Domains["Microsoft"])

	_, err = admin.AddDomain(ctx, authsdk.AddDomainRequest{Name: "Microsoft"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "domain name and URL are required", apiErr.Message)

	_, err = admin.AddDomain(ctx, authsdk.AddDomainRequest{OrgID: "elsewhere", Name: "X", Domain: "x.com"})
	assert.Equal(t, http.StatusForbidden, authsdk.StatusCode(err))

	updated, err = admin.RemoveDomain(ctx, authsdk.RemoveDomainRequest{OrgID: org.Data.ID, Name: "Microsoft"})
	require.NoError(t, err)
	assert.NotContains(t, updated.Domains, "Microsoft")

	// The POST form is kept for older clients.
	resp, body := s.do(t, http.MethodPost, "/organization/domain/remove", admin.Token(), `{"name":"Internal"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotContains(t, body, "internal.techcorp.com")

	_, err = admin.RemoveDomain(ctx, authsdk.RemoveDomainRequest{Name: "Internal"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "domain not found", apiErr.Message)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", live.Status)
	assert.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	assert.Equal(t, "ok", ready.Checks.Database)
	assert.Empty(t, ready.Checks.Revocations)

	resp, body := s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `tenantauth_http_requests_total{method="GET",route="GET /readyz",status="200"} 1`)
}

func TestRequestIDAndCORS(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.srv.URL+"/user/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.techcorp.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.techcorp.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = s.do(t, http.MethodGet, "/livez", "", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRateLimitLogin(t *testing.T) {
	saved := httpx.StrictLimit
	httpx.StrictLimit = httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}
	t.Cleanup(func() { httpx.StrictLimit = saved })

	s := newTestServer(t)
	body := `{"email":"admin@techcorp.com","password":"wrong-password"}`

	for i := range 5 {
		resp, _ := s.do(t, http.MethodPost, "/user/login", "", body)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "request %d", i+1)
	}

	resp, raw := s.do(t, http.MethodPost, "/user/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, raw, `"success":false`)

	// A different email is a different bucket.
	resp, _ = s.do(t, http.MethodPost, "/user/login", "", `{"email":"other@techcorp.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLiveness(t *testing.T) {
	s := newTestServer(t)

	health, err := s.client.GetLiveness(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Nil(t, health.Checks)

	uptime, err := time.ParseDuration(health.Uptime)
	require.NoError(t, err)
	assert.Equal(t, uptime.Truncate(time.Second), uptime)
}
