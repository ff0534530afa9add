package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestEmailedMFALogin logs in with a code delivered over SMTP.
func TestEmailedMFALogin(t *testing.T) {
	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)
	_, admin := newOrganization(t, client)

	email := unique("developer")
	_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{
		Email:      email,
		Password:   testPassword,
		Role:       "developer",
		Access:     []string{"techcorp.com"},
		MFAEnabled: true,
	})
	require.NoError(t, err)

	session, resp, err := client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	require.Nil(t, session)
	require.True(t, resp.RequireMFA)
	require.NotEmpty(t, resp.UserID)

	code := readCode(t, email, "Your MFA Code")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: wrong})
	assertStatus(t, err, http.StatusUnauthorized)

	session, err = client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: code})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token())
	require.Equal(t, email, session.User().Email)
	require.Equal(t, "developer", session.User().Role)

	// The code is single use.
	_, err = client.CompleteMFA(ctx, authsdk.VerifyMFARequest{UserID: resp.UserID, OTP: code})
	assertStatus(t, err, http.StatusUnauthorized)
}

// TestVerifyMFAByEmail redeems a code by address instead of user id.
func TestVerifyMFAByEmail(t *testing.T) {
	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)
	org, admin := newOrganization(t, client)

	email := unique("user")
	_, err := admin.CreateUser(ctx, authsdk.CreateUserRequest{Email: email, Password: testPassword, MFAEnabled: true})
	require.NoError(t, err)

	_, resp, err := client.AuthenticateWithPassword(ctx, authsdk.LoginRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	require.True(t, resp.RequireMFA)

	session, err := client.CompleteMFA(ctx, authsdk.VerifyMFARequest{
		Email: email,
		OrgID: org.Data.ID,
		OTP:   readCode(t, email, "Your MFA Code"),
	})
	require.NoError(t, err)
	require.Equal(t, org.Data.ID, session.User().OrgID)
}
