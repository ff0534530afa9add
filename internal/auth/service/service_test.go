package service

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/federation"
	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/notify"
	"github.com/aussiebroadwan/tenantauth/internal/auth/revoke"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIssuer   = "tenantauth-test"
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Password123!"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeFederation map[string]federation.Identity

func (f fakeFederation) Verify(_ context.Context, assertion string) (federation.Identity, error) {
	id, ok := f[assertion]
	if !ok {
		return federation.Identity{}, federation.ErrInvalidAssertion
	}
	return id, nil
}

type testEnv struct {
	store    *sqlite.Store
	clock    *fakeClock
	mail     *notify.Recorder
	metrics  *metrics.Metrics
	verifier *jwtx.HS256Verifier

	auth  *AuthService
	authz *Authorizer
	admin *AdminService
	orgs  *OrganizationService
	mfa   *MFAService
	fed   fakeFederation
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewSignerHS256([]byte(testSecret))
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256([]byte(testSecret), testIssuer)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	hasher := cryptox.NewHasher(bcrypt.MinCost, 4)
	mail := &notify.Recorder{}
	m := metrics.New()
	fed := fakeFederation{}

	revocations := revoke.NewStoreList(st)
	revocations.Now = clock.Now

	env := &testEnv{
		store:    st,
		clock:    clock,
		mail:     mail,
		metrics:  m,
		verifier: verifier,
		fed:      fed,
	}
	env.auth = &AuthService{
		Store:       st,
		Hasher:      hasher,
		Sessions:    &SessionIssuer{Signer: signer, Issuer: testIssuer, TTL: jwtx.DefaultSessionTTL},
		Codes:       &OTPIssuer{Store: st, Notifier: mail, TTL: DefaultOTPTTL, Metrics: m},
		Federation:  fed,
		Revocations: revocations,
		Metrics:     m,
		Now:         clock.Now,
	}
	env.authz = &Authorizer{Verifier: verifier, Revocations: revocations, Now: clock.Now}
	env.admin = &AdminService{Store: st, Hasher: hasher, Now: clock.Now}
	env.orgs = &OrganizationService{Store: st, Hasher: hasher, Now: clock.Now}
	env.mfa = &MFAService{Store: st, Issuer: "TenantAuth", Now: clock.Now}
	return env
}

// newOrg creates an organization whose first admin has the given MFA setting.
func (e *testEnv) newOrg(t *testing.T, name, adminEmail string, mfa bool) (domain.Organization, domain.Principal) {
	t.Helper()

	org, admin, err := e.orgs.Create(context.Background(), domain.NewOrganization{
		Name:    name,
		Domains: map[string]string{"Internal": "internal.example.com"},
		Admin: &domain.NewUser{
			Email:      adminEmail,
			Name:       "Admin",
			Password:   testPassword,
			MFAEnabled: mfa,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, admin)
	return org, principalOf(*admin)
}

func (e *testEnv) newUser(t *testing.T, admin domain.Principal, email string, role domain.Role, mfa bool) domain.PublicUser {
	t.Helper()

	u, err := e.admin.CreateUser(context.Background(), admin, domain.NewUser{
		Email:      email,
		Password:   testPassword,
		Role:       role,
		MFAEnabled: mfa,
	})
	require.NoError(t, err)
	return u
}

func principalOf(u domain.PublicUser) domain.Principal {
	return domain.Principal{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Role:           u.Role,
	}
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// lastCode pulls the most recent one-time code mailed to email.
func (e *testEnv) lastCode(t *testing.T, email string) string {
	t.Helper()

	msg, ok := e.mail.Last(email)
	require.True(t, ok, "no message sent to %s", email)
	m := codePattern.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2, "no code in %q", msg.Body)
	return m[1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
