package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/federation"
	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/revoke"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Login flows, used as metric labels.
const (
	flowPassword  = "password"
	flowAdmin     = "admin"
	flowFederated = "federated"
	flowMFA       = "mfa"
)

var errAmbiguousEmail = errors.New("email matches several organizations")

type LoginRequest struct {
	Email          string
	Password       string
	OrganizationID string // optional
}

// LoginResult is either a session (Token set) or a pending MFA challenge
// (MFARequired set), never both.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.PublicUser

	MFARequired bool
	UserID      string
}

type ResetPasswordRequest struct {
	Email          string
	OrganizationID string
	Code           string
	NewPassword    string
}

// AuthService runs the credential flows: password login, the emailed or
// authenticator second factor, password reset and federated login.
type AuthService struct {
	Store       store.Store
	Hasher      *cryptox.Hasher
	Sessions    *SessionIssuer
	Codes       *OTPIssuer
	Federation  federation.Verifier
	Revocations revoke.List
	Metrics     *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Login checks email and password. Users with MFA enabled get a code by
// email instead of a session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	return s.login(ctx, req, flowPassword, nil)
}

// AdminLogin is Login restricted to administrators. A non-admin gets the
// same error as a wrong password.
func (s *AuthService) AdminLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	return s.login(ctx, req, flowAdmin, func(u domain.User) bool { return u.Role == domain.RoleAdmin })
}

func (s *AuthService) login(
	ctx context.Context,
	req LoginRequest,
	flow string,
	allow func(domain.User) bool,
) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	email := domain.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return LoginResult{}, validationError("email and password are required")
	}

	u, err := s.authenticate(ctx, email, req.Password, strings.TrimSpace(req.OrganizationID))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.Metrics.LoginAttempt(flow, metrics.OutcomeFailure)
			l.Info("login rejected", slog.String("flow", flow))
		}
		return LoginResult{}, err
	}

	if allow != nil && !allow(u) {
		s.Metrics.LoginAttempt(flow, metrics.OutcomeFailure)
		l.Warn("login rejected, role not permitted", slog.String("flow", flow), slog.String("user_id", u.ID))
		return LoginResult{}, ErrInvalidCredentials
	}

	return s.complete(ctx, u, flow, s.now())
}

// authenticate resolves the account and verifies the password. Every
// failure, including an unknown email, costs one bcrypt comparison and ends
// in ErrInvalidCredentials.
func (s *AuthService) authenticate(ctx context.Context, email, password, organizationID string) (domain.User, error) {
	u, err := s.lookup(ctx, email, organizationID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errAmbiguousEmail):
		if err := s.Hasher.VerifyDummy(ctx, password); !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, err
		}
		return domain.User{}, ErrInvalidCredentials
	default:
		return domain.User{}, err
	}

	if err := s.Hasher.Verify(ctx, password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	return u, nil
}

// lookup finds the account for email. Without an organization the email
// must identify exactly one account.
func (s *AuthService) lookup(ctx context.Context, email, organizationID string) (domain.User, error) {
	if organizationID != "" {
		return s.Store.Users().GetUserByEmail(ctx, organizationID, email)
	}

	users, err := s.Store.Users().ListUsersByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	switch len(users) {
	case 0:
		return domain.User{}, store.ErrNotFound
	case 1:
		return users[0], nil
	default:
		return domain.User{}, errAmbiguousEmail
	}
}

// complete either starts the MFA challenge or finishes the login.
func (s *AuthService) complete(ctx context.Context, u domain.User, flow string, now time.Time) (LoginResult, error) {
	if !u.MFAEnabled {
		return s.finish(ctx, u, flow, now)
	}

	if err := s.Codes.Issue(ctx, u, domain.ChallengeMFA, now); err != nil {
		return LoginResult{}, err
	}
	s.Metrics.LoginAttempt(flow, metrics.OutcomeMFARequired)
	return LoginResult{MFARequired: true, UserID: u.ID}, nil
}

// finish records the login and signs a session. Codes still pending for
// the account are dropped; a completed login supersedes them.
func (s *AuthService) finish(ctx context.Context, u domain.User, flow string, now time.Time) (LoginResult, error) {
	if err := s.Store.Users().AppendLoginEvent(ctx, u.ID, now, domain.LoginHistoryLimit); err != nil {
		return LoginResult{}, fmt.Errorf("record login: %w", err)
	}
	for _, kind := range []domain.ChallengeKind{domain.ChallengeMFA, domain.ChallengeReset} {
		if err := s.Store.Users().ClearChallenge(ctx, u.ID, kind); err != nil {
			return LoginResult{}, fmt.Errorf("clear %s challenge: %w", kind, err)
		}
	}

	sess, err := s.Sessions.Issue(u, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}

	history, err := s.Store.Users().ListLoginEvents(ctx, u.ID, domain.LoginHistoryLimit)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load login history: %w", err)
	}

	pub := u.Public()
	pub.LoginHistory = history

	s.Metrics.LoginAttempt(flow, metrics.OutcomeSuccess)
	slogx.FromContext(ctx).Info("login succeeded",
		slog.String("flow", flow),
		slog.String("user_id", u.ID),
		slog.String("org_id", u.OrganizationID),
	)
	return LoginResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: &pub}, nil
}

// VerifyMFA redeems the pending MFA challenge. The code is either the one
// sent by email or, for users with a confirmed authenticator, a current
// TOTP code. Every failure looks the same to the caller.
func (s *AuthService) VerifyMFA(ctx context.Context, userID, code string) (LoginResult, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return LoginResult{}, validationError("user id and code are required")
	}

	now := s.now()
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, s.challengeFailed(ctx, domain.ChallengeMFA, userID)
	}
	if err != nil {
		return LoginResult{}, err
	}

	spent, err := s.claimAttempt(ctx, u.ID, domain.ChallengeMFA, now)
	if err != nil {
		return LoginResult{}, err
	}

	err = s.Store.Users().ConsumeChallenge(ctx, u.ID, domain.ChallengeMFA, cryptox.Fingerprint(code), now)
	if errors.Is(err, store.ErrNotFound) && s.validTOTP(u, code, now) {
		// The authenticator stands in for the emailed code, but only while
		// a password step is pending.
		err = s.Store.Users().ConsumeChallenge(ctx, u.ID, domain.ChallengeMFA, u.MFAChallenge.CodeHash, now)
	}
	if errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, s.missedAttempt(ctx, u.ID, domain.ChallengeMFA, spent)
	}
	if err != nil {
		return LoginResult{}, err
	}

	u.MFAChallenge = nil
	return s.finish(ctx, u, flowMFA, now)
}

// VerifyMFAByEmail is VerifyMFA for clients that only know the email (and
// optionally the organization) they logged in with.
func (s *AuthService) VerifyMFAByEmail(ctx context.Context, email, organizationID, code string) (LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return LoginResult{}, validationError("email and code are required")
	}

	u, err := s.lookup(ctx, email, strings.TrimSpace(organizationID))
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errAmbiguousEmail):
		return LoginResult{}, s.challengeFailed(ctx, domain.ChallengeMFA, "")
	case err != nil:
		return LoginResult{}, err
	}
	return s.VerifyMFA(ctx, u.ID, code)
}

func (s *AuthService) validTOTP(u domain.User, code string, now time.Time) bool {
	if !u.TOTPEnabled || u.TOTPSecret == "" || !u.MFAChallenge.ActiveAt(now) {
		return false
	}
	ok, err := totp.ValidateCustom(code, u.TOTPSecret, now, totpOpts)
	return err == nil && ok
}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// claimAttempt spends one check against the pending challenge before any
// code is compared. Once MaxChallengeAttempts are spent the challenge is
// dead and only a fresh one helps.
func (s *AuthService) claimAttempt(
	ctx context.Context,
	userID string,
	kind domain.ChallengeKind,
	now time.Time,
) (int, error) {
	spent, err := s.Store.Users().ClaimChallengeAttempt(ctx, userID, kind, domain.MaxChallengeAttempts, now)
	if errors.Is(err, store.ErrNotFound) {
		return 0, s.challengeFailed(ctx, kind, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("claim challenge attempt: %w", err)
	}
	return spent, nil
}

// missedAttempt rejects a wrong code and drops the challenge when that was
// its last attempt.
func (s *AuthService) missedAttempt(ctx context.Context, userID string, kind domain.ChallengeKind, spent int) error {
	if spent >= domain.MaxChallengeAttempts {
		if err := s.Store.Users().ClearChallenge(ctx, userID, kind); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("clear challenge: %w", err)
		}
		slogx.FromContext(ctx).Warn("challenge attempts exhausted",
			slog.String("kind", string(kind)),
			slog.String("user_id", userID),
		)
	}
	return s.challengeFailed(ctx, kind, userID)
}

func (s *AuthService) challengeFailed(ctx context.Context, kind domain.ChallengeKind, userID string) error {
	s.Metrics.ChallengeFailed(string(kind))
	slogx.FromContext(ctx).Warn("one-time code rejected",
		slog.String("kind", string(kind)),
		slog.String("user_id", userID),
	)
	return ErrInvalidChallenge
}

// RequestPasswordReset emails a reset code. Unlike login this flow reports
// unknown emails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, organizationID string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return validationError("email is required")
	}

	u, err := s.lookup(ctx, email, strings.TrimSpace(organizationID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, errAmbiguousEmail):
		return ErrOrganizationRequired
	case err != nil:
		return err
	}

	return s.Codes.Issue(ctx, u, domain.ChallengeReset, s.now())
}

// VerifyResetCode checks a reset code without using it up. The check still
// counts against the challenge's attempts.
func (s *AuthService) VerifyResetCode(ctx context.Context, email, organizationID, code string) error {
	_, err := s.resetTarget(ctx, email, organizationID, code, s.now())
	return err
}

// ResetPassword replaces the password if the reset code is still valid.
// The code is spent by the same statement that writes the new hash.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := cryptox.ValidatePassword(req.NewPassword); err != nil {
		return passwordError(err)
	}

	now := s.now()
	u, err := s.resetTarget(ctx, req.Email, req.OrganizationID, req.Code, now)
	if err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return passwordError(err)
	}

	err = s.Store.Users().ResetPassword(ctx, u.ID, cryptox.Fingerprint(strings.TrimSpace(req.Code)), hash, now)
	if errors.Is(err, store.ErrNotFound) {
		return s.challengeFailed(ctx, domain.ChallengeReset, u.ID)
	}
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password reset", slog.String("user_id", u.ID))
	return nil
}

func (s *AuthService) resetTarget(
	ctx context.Context,
	email, organizationID, code string,
	now time.Time,
) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return domain.User{}, validationError("email and code are required")
	}

	u, err := s.lookup(ctx, email, strings.TrimSpace(organizationID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, s.challengeFailed(ctx, domain.ChallengeReset, "")
	case errors.Is(err, errAmbiguousEmail):
		return domain.User{}, ErrOrganizationRequired
	case err != nil:
		return domain.User{}, err
	}

	spent, err := s.claimAttempt(ctx, u.ID, domain.ChallengeReset, now)
	if err != nil {
		return domain.User{}, err
	}
	if u.ResetChallenge == nil || !cryptox.FingerprintEqual(code, u.ResetChallenge.CodeHash) {
		return domain.User{}, s.missedAttempt(ctx, u.ID, domain.ChallengeReset, spent)
	}
	return u, nil
}

// FederatedLogin signs in an existing account on the strength of an
// external identity. The external id is linked on first use. Accounts are
// never created here, and MFA still applies.
func (s *AuthService) FederatedLogin(ctx context.Context, email, externalID string) (LoginResult, error) {
	email = domain.NormalizeEmail(email)
	externalID = strings.TrimSpace(externalID)
	if email == "" && externalID == "" {
		return LoginResult{}, validationError("email or external id is required")
	}

	u, err := s.federatedAccount(ctx, email, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidCredentials) {
			s.Metrics.LoginAttempt(flowFederated, metrics.OutcomeFailure)
		}
		return LoginResult{}, err
	}

	if externalID != "" && u.ExternalID == "" {
		err := s.Store.Users().LinkExternalID(ctx, u.ID, externalID)
		if errors.Is(err, store.ErrAlreadyExists) {
			return LoginResult{}, &Error{Kind: ErrConflict, Message: "external identity already linked"}
		}
		if err != nil {
			return LoginResult{}, err
		}
		u.ExternalID = externalID
		slogx.FromContext(ctx).Info("external identity linked", slog.String("user_id", u.ID))
	}

	return s.complete(ctx, u, flowFederated, s.now())
}

func (s *AuthService) federatedAccount(ctx context.Context, email, externalID string) (domain.User, error) {
	if externalID != "" {
		u, err := s.Store.Users().GetUserByExternalID(ctx, externalID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, err
		}
	}
	if email == "" {
		return domain.User{}, ErrUserNotFound
	}

	u, err := s.lookup(ctx, email, "")
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errAmbiguousEmail):
		return domain.User{}, ErrUserNotFound
	case err != nil:
		return domain.User{}, err
	}

	// The email belongs to an account already bound to someone else.
	if externalID != "" && u.ExternalID != "" && u.ExternalID != externalID {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// FederatedLoginWithToken verifies an identity assertion (a Google ID token)
// and continues with FederatedLogin.
func (s *AuthService) FederatedLoginWithToken(ctx context.Context, assertion string) (LoginResult, error) {
	if s.Federation == nil {
		return LoginResult{}, validationError("federated login is not enabled")
	}

	id, err := s.Federation.Verify(ctx, assertion)
	switch {
	case errors.Is(err, federation.ErrDisabled):
		return LoginResult{}, validationError("federated login is not enabled")
	case errors.Is(err, federation.ErrInvalidAssertion), errors.Is(err, federation.ErrEmailUnverified):
		s.Metrics.LoginAttempt(flowFederated, metrics.OutcomeFailure)
		slogx.FromContext(ctx).Info("federated assertion rejected", slog.Any("error", err))
		return LoginResult{}, ErrInvalidCredentials
	case err != nil:
		return LoginResult{}, err
	}

	return s.FederatedLogin(ctx, id.Email, id.Subject)
}

// UpdateProfile is the self-service edit. Only the display name can change.
func (s *AuthService) UpdateProfile(ctx context.Context, p domain.Principal, name string) (domain.PublicUser, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PublicUser{}, validationError("name is required")
	}

	err := s.Store.Users().UpdateName(ctx, p.UserID, name)
	if errors.Is(err, store.ErrNotFound) {
		return domain.PublicUser{}, ErrUserNotFound
	}
	if err != nil {
		return domain.PublicUser{}, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, p.UserID)
	if err != nil {
		return domain.PublicUser{}, err
	}
	return u.Public(), nil
}

// Logout revokes the presented token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, p domain.Principal) error {
	if p.TokenID == "" {
		return errTokenInvalid
	}
	if err := s.Revocations.Revoke(ctx, p.TokenID, p.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	slogx.FromContext(ctx).Info("session revoked", slog.String("user_id", p.UserID))
	return nil
}
