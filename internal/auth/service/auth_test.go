package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_WithoutMFAIssuesMatchingToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, admin := env.newOrg(t, "TechCorp Solutions", "admin@techcorp.com", false)
	user := env.newUser(t, admin, "user1@techcorp.com", domain.RoleDeveloper, false)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "  USER1@techcorp.com ", Password: testPassword})
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.User)

	claims, err := env.verifier.VerifyAt(res.Token, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.OrganizationID, claims.OrganizationID)
	assert.Equal(t, "developer", claims.Role)
	assert.Equal(t, "user1@techcorp.com", claims.Email)
	assert.WithinDuration(t, env.clock.Now().Add(12*time.Hour), res.ExpiresAt, time.Second)

	assert.Equal(t, user.ID, res.User.ID)
	assert.Len(t, res.User.LoginHistory, 1)
	assert.Empty(t, env.mail.Messages())
}

func TestLogin_UnknownUserAndWrongPasswordLookTheSame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp Solutions", "admin@techcorp.com", false)

	_, errUnknown := env.auth.Login(ctx, LoginRequest{Email: "ghost@techcorp.com", Password: testPassword})
	_, errWrong := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: "not-the-password"})

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Login(context.Background(), LoginRequest{Email: "a@example.com"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.auth.Login(context.Background(), LoginRequest{Password: "x"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestLogin_WithMFANeverReturnsTokenAndSendsOneCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, admin := env.newOrg(t, "TechCorp Solutions", "admin@techcorp.com", false)
	user := env.newUser(t, admin, "developer@techcorp.com", domain.RoleDeveloper, true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "developer@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Equal(t, user.ID, res.UserID)
	assert.Empty(t, res.Token)
	assert.Nil(t, res.User)

	msgs := env.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "developer@techcorp.com", msgs[0].To)
	assert.Equal(t, "Your MFA Code", msgs[0].Subject)

	stored, err := env.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.MFAChallenge)
	assert.NotEqual(t, env.lastCode(t, "developer@techcorp.com"), stored.MFAChallenge.CodeHash)
}

func TestTechCorpScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	// Within the window.
	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: "Password123!"})
	require.NoError(t, err)
	require.True(t, res.MFARequired)
	userID := res.UserID

	env.clock.Advance(119 * time.Second)
	verified, err := env.auth.VerifyMFA(ctx, userID, env.lastCode(t, "admin@techcorp.com"))
	require.NoError(t, err)
	require.NotEmpty(t, verified.Token)
	assert.Equal(t, domain.RoleAdmin, verified.User.Role)

	// After the window.
	res, err = env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: "Password123!"})
	require.NoError(t, err)
	require.True(t, res.MFARequired)

	env.clock.Advance(2 * time.Minute)
	_, err = env.auth.VerifyMFA(ctx, userID, env.lastCode(t, "admin@techcorp.com"))
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestVerifyMFA_WrongCodeAndSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	code := env.lastCode(t, "admin@techcorp.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for range 3 {
		_, err = env.auth.VerifyMFA(ctx, res.UserID, wrong)
		require.ErrorIs(t, err, ErrInvalidChallenge)
	}

	// Failed attempts leave the original window untouched.
	stored, err := env.store.Users().GetUserByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.WithinDuration(t, env.clock.Now().Add(DefaultOTPTTL), stored.MFAChallenge.ExpiresAt, time.Millisecond)

	_, err = env.auth.VerifyMFA(ctx, res.UserID, code)
	require.NoError(t, err)

	_, err = env.auth.VerifyMFA(ctx, res.UserID, code)
	require.ErrorIs(t, err, ErrInvalidChallenge)

	_, err = env.auth.VerifyMFA(ctx, "no-such-user", code)
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestVerifyMFA_NewCodeReplacesOld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	first := env.lastCode(t, "admin@techcorp.com")

	_, err = env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	second := env.lastCode(t, "admin@techcorp.com")

	if first != second {
		_, err = env.auth.VerifyMFA(ctx, res.UserID, first)
		require.ErrorIs(t, err, ErrInvalidChallenge)
	}
	_, err = env.auth.VerifyMFA(ctx, res.UserID, second)
	require.NoError(t, err)
}

func TestVerifyMFA_ConcurrentCallsSucceedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	code := env.lastCode(t, "admin@techcorp.com")

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.auth.VerifyMFA(ctx, res.UserID, code); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), success.Load())
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestVerifyMFA_AttemptsAreCapped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	code := env.lastCode(t, "admin@techcorp.com")

	for range domain.MaxChallengeAttempts {
		_, err = env.auth.VerifyMFA(ctx, res.UserID, wrongCode(code))
		require.ErrorIs(t, err, ErrInvalidChallenge)
	}

	stored, err := env.store.Users().GetUserByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored.MFAChallenge)

	// The right code is useless once the attempts are spent.
	_, err = env.auth.VerifyMFA(ctx, res.UserID, code)
	require.ErrorIs(t, err, ErrInvalidChallenge)

	_, err = env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	verified, err := env.auth.VerifyMFA(ctx, res.UserID, env.lastCode(t, "admin@techcorp.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, verified.Token)
}

func TestVerifyMFA_LastAttemptCanSucceed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	code := env.lastCode(t, "admin@techcorp.com")

	for range domain.MaxChallengeAttempts - 1 {
		_, err = env.auth.VerifyMFA(ctx, res.UserID, wrongCode(code))
		require.ErrorIs(t, err, ErrInvalidChallenge)
	}
	_, err = env.auth.VerifyMFA(ctx, res.UserID, code)
	require.NoError(t, err)
}

func TestVerifyMFA_ConcurrentGuessesAreBounded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	code := env.lastCode(t, "admin@techcorp.com")

	var wg sync.WaitGroup
	for range 4 * domain.MaxChallengeAttempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.auth.VerifyMFA(ctx, res.UserID, wrongCode(code))
		}()
	}
	wg.Wait()

	_, err = env.auth.VerifyMFA(ctx, res.UserID, code)
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestAdminLogin_RejectsNonAdminsLikeBadPasswords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, admin := env.newOrg(t, "TechCorp", "admin@techcorp.com", false)
	env.newUser(t, admin, "developer@techcorp.com", domain.RoleDeveloper, true)

	_, err := env.auth.AdminLogin(ctx, LoginRequest{Email: "developer@techcorp.com", Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, env.mail.Messages(), "no code for a rejected admin login")

	res, err := env.auth.AdminLogin(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
}

func TestLogin_EmailSharedAcrossOrganizations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgA, adminA := env.newOrg(t, "Org A", "admin@a.example.com", false)
	_, adminB := env.newOrg(t, "Org B", "admin@b.example.com", false)
	env.newUser(t, adminA, "shared@example.com", domain.RoleUser, false)
	env.newUser(t, adminB, "shared@example.com", domain.RoleUser, false)

	_, err := env.auth.Login(ctx, LoginRequest{Email: "shared@example.com", Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := env.auth.Login(ctx, LoginRequest{
		Email:          "shared@example.com",
		Password:       testPassword,
		OrganizationID: orgA.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, orgA.ID, res.User.OrganizationID)

	err = env.auth.RequestPasswordReset(ctx, "shared@example.com", "")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "organization id required", err.Error())
}

func TestPasswordReset_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, admin := env.newOrg(t, "TechCorp", "admin@techcorp.com", false)
	env.newUser(t, admin, "user2@techcorp.com", domain.RoleUser, false)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "user2@techcorp.com", ""))
	msg, ok := env.mail.Last("user2@techcorp.com")
	require.True(t, ok)
	assert.Equal(t, "Password Reset OTP", msg.Subject)
	code := env.lastCode(t, "user2@techcorp.com")

	// Verification does not spend the code.
	require.NoError(t, env.auth.VerifyResetCode(ctx, "user2@techcorp.com", "", code))
	require.NoError(t, env.auth.VerifyResetCode(ctx, "user2@techcorp.com", "", code))

	err := env.auth.ResetPassword(ctx, ResetPasswordRequest{
		Email: "user2@techcorp.com", Code: code, NewPassword: "short",
	})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.auth.ResetPassword(ctx, ResetPasswordRequest{
		Email: "user2@techcorp.com", Code: code, NewPassword: "N3wPassword!",
	}))

	_, err = env.auth.Login(ctx, LoginRequest{Email: "user2@techcorp.com", Password: "N3wPassword!"})
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, LoginRequest{Email: "user2@techcorp.com", Password: testPassword})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.auth.ResetPassword(ctx, ResetPasswordRequest{
		Email: "user2@techcorp.com", Code: code, NewPassword: "Another1!",
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestPasswordReset_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", false)

	err := env.auth.RequestPasswordReset(ctx, "ghost@techcorp.com", "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "user not found", err.Error())

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "admin@techcorp.com", ""))
	code := env.lastCode(t, "admin@techcorp.com")

	require.ErrorIs(t, env.auth.VerifyResetCode(ctx, "ghost@techcorp.com", "", code), ErrInvalidChallenge)

	env.clock.Advance(DefaultOTPTTL)
	require.ErrorIs(t, env.auth.VerifyResetCode(ctx, "admin@techcorp.com", "", code), ErrInvalidChallenge)
	err = env.auth.ResetPassword(ctx, ResetPasswordRequest{
		Email: "admin@techcorp.com", Code: code, NewPassword: "N3wPassword!",
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestPasswordReset_AttemptsAreCapped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", false)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "admin@techcorp.com", ""))
	code := env.lastCode(t, "admin@techcorp.com")

	for i := range domain.MaxChallengeAttempts {
		var err error
		if i%2 == 0 {
			err = env.auth.VerifyResetCode(ctx, "admin@techcorp.com", "", wrongCode(code))
		} else {
			err = env.auth.ResetPassword(ctx, ResetPasswordRequest{
				Email: "admin@techcorp.com", Code: wrongCode(code), NewPassword: "N3wPassword!",
			})
		}
		require.ErrorIs(t, err, ErrInvalidChallenge)
	}

	require.ErrorIs(t, env.auth.VerifyResetCode(ctx, "admin@techcorp.com", "", code), ErrInvalidChallenge)
	err := env.auth.ResetPassword(ctx, ResetPasswordRequest{
		Email: "admin@techcorp.com", Code: code, NewPassword: "N3wPassword!",
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)

	_, err = env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
}

func TestLogin_DropsPendingCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", false)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "admin@techcorp.com", ""))
	code := env.lastCode(t, "admin@techcorp.com")

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	stored, err := env.store.Users().GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetChallenge)
	assert.Nil(t, stored.MFAChallenge)

	require.ErrorIs(t, env.auth.VerifyResetCode(ctx, "admin@techcorp.com", "", code), ErrInvalidChallenge)
	err = env.auth.ResetPassword(ctx, ResetPasswordRequest{
		Email: "admin@techcorp.com", Code: code, NewPassword: "N3wPassword!",
	})
	require.ErrorIs(t, err, ErrInvalidChallenge)
}

func TestFederatedLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, admin := env.newOrg(t, "TechCorp", "admin@techcorp.com", false)
	user := env.newUser(t, admin, "user1@techcorp.com", domain.RoleUser, false)
	mfaUser := env.newUser(t, admin, "developer@techcorp.com", domain.RoleDeveloper, true)

	env.fed["good"] = federation.Identity{Subject: "google-1", Email: "user1@techcorp.com"}
	env.fed["stranger"] = federation.Identity{Subject: "google-2", Email: "nobody@techcorp.com"}
	env.fed["mfa"] = federation.Identity{Subject: "google-3", Email: "developer@techcorp.com"}
	env.fed["hijack"] = federation.Identity{Subject: "google-4", Email: "user1@techcorp.com"}

	t.Run("links external id on first use", func(t *testing.T) {
		res, err := env.auth.FederatedLoginWithToken(ctx, "good")
		require.NoError(t, err)
		require.NotEmpty(t, res.Token)

		stored, err := env.store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "google-1", stored.ExternalID)

		res, err = env.auth.FederatedLogin(ctx, "", "google-1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, res.User.ID)
	})

	t.Run("never provisions", func(t *testing.T) {
		_, err := env.auth.FederatedLoginWithToken(ctx, "stranger")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("honours mfa", func(t *testing.T) {
		res, err := env.auth.FederatedLoginWithToken(ctx, "mfa")
		require.NoError(t, err)
		assert.True(t, res.MFARequired)
		assert.Equal(t, mfaUser.ID, res.UserID)
		assert.Empty(t, res.Token)
	})

	t.Run("rejects a different subject for a linked email", func(t *testing.T) {
		_, err := env.auth.FederatedLoginWithToken(ctx, "hijack")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects bad assertions", func(t *testing.T) {
		_, err := env.auth.FederatedLoginWithToken(ctx, "forged")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestUpdateProfile_ChangesNameOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, admin := env.newOrg(t, "TechCorp", "admin@techcorp.com", false)
	user := env.newUser(t, admin, "user1@techcorp.com", domain.RoleUser, false)

	updated, err := env.auth.UpdateProfile(ctx, principalOf(user), "  User One ")
	require.NoError(t, err)
	assert.Equal(t, "User One", updated.Name)
	assert.Equal(t, domain.RoleUser, updated.Role)

	_, err = env.auth.UpdateProfile(ctx, principalOf(user), " ")
	require.ErrorIs(t, err, ErrValidation)
}

func TestLogout_RevokesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newOrg(t, "TechCorp", "admin@techcorp.com", false)

	res, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)

	p, err := env.authz.RequireRole(ctx, res.Token)
	require.NoError(t, err)
	require.NoError(t, env.auth.Logout(ctx, p))

	_, err = env.authz.RequireRole(ctx, res.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, "token revoked", err.Error())
}

func TestVerifyMFAByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org, _ := env.newOrg(t, "TechCorp", "admin@techcorp.com", true)

	_, err := env.auth.Login(ctx, LoginRequest{Email: "admin@techcorp.com", Password: testPassword})
	require.NoError(t, err)
	code := env.lastCode(t, "admin@techcorp.com")

	_, err = env.auth.VerifyMFAByEmail(ctx, "ghost@techcorp.com", "", code)
	require.ErrorIs(t, err, ErrInvalidChallenge)

	res, err := env.auth.VerifyMFAByEmail(ctx, "Admin@TechCorp.com", org.ID, code)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
}
