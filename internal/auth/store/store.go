package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so nobody accidentally starts a transaction inside another.
type Store interface {
	Users() Users
	Organizations() Organizations
	Revocations() Revocations

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Only use the tx
	// handed to fn inside it, never the outer Store.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail returns the user with email inside one organization.
	GetUserByEmail(ctx context.Context, organizationID, email string) (domain.User, error)

	// ListUsersByEmail returns every account using email across organizations.
	ListUsersByEmail(ctx context.Context, email string) ([]domain.User, error)

	// GetUserByExternalID returns the user linked to a federated subject.
	GetUserByExternalID(ctx context.Context, externalID string) (domain.User, error)

	// ListUsersByOrganization returns an organization's users, oldest first.
	ListUsersByOrganization(ctx context.Context, organizationID string) ([]domain.User, error)

	// CountAdmins counts users with the admin role in an organization.
	CountAdmins(ctx context.Context, organizationID string) (int, error)

	// CreateUser inserts a new user together with its access list. Returns
	// ErrAlreadyExists when the email is taken inside the organization.
	CreateUser(ctx context.Context, u domain.User) error

	// DeleteUser removes a user and its dependent rows.
	DeleteUser(ctx context.Context, id string) error

	UpdateName(ctx context.Context, id, name string) error
	UpdateRole(ctx context.Context, id string, role domain.Role) error

	// ReplaceAccess overwrites the access list, preserving the given order.
	ReplaceAccess(ctx context.Context, id string, access []string) error

	// SetMFAEnabled flips the email OTP second factor. Disabling it also
	// drops any pending MFA challenge.
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error

	// LinkExternalID binds a federated subject to the user.
	LinkExternalID(ctx context.Context, id, externalID string) error

	// SetTOTPSecret stores a new authenticator secret and marks it unconfirmed.
	SetTOTPSecret(ctx context.Context, id, secret string) error

	// EnableTOTP confirms the stored authenticator secret.
	EnableTOTP(ctx context.Context, id string) error

	// SetChallenge stores a challenge of the given kind, replacing any
	// previous one.
	SetChallenge(ctx context.Context, id string, kind domain.ChallengeKind, ch domain.Challenge) error

	// ClaimChallengeAttempt spends one of the maxAttempts code checks
	// allowed against the active challenge of kind and returns how many are
	// now spent. Returns ErrNotFound when no challenge is active or its
	// attempts are used up. Callers claim before comparing a code, so
	// concurrent guesses cannot exceed the limit.
	ClaimChallengeAttempt(
		ctx context.Context,
		id string,
		kind domain.ChallengeKind,
		maxAttempts int,
		now time.Time,
	) (int, error)

	// ClearChallenge drops the challenge of kind, if one is pending.
	ClearChallenge(ctx context.Context, id string, kind domain.ChallengeKind) error

	// ConsumeChallenge clears the challenge in a single statement if it
	// matches codeHash and is still active at now. Returns ErrNotFound
	// otherwise, so two concurrent callers cannot both succeed.
	ConsumeChallenge(ctx context.Context, id string, kind domain.ChallengeKind, codeHash string, now time.Time) error

	// ResetPassword swaps the password hash and clears the reset challenge
	// in one statement, guarded the same way as ConsumeChallenge. Any
	// pending MFA challenge is dropped too.
	ResetPassword(ctx context.Context, id, codeHash, newPasswordHash string, now time.Time) error

	// ClearExpiredChallenges removes challenges whose expiry is at or
	// before now and reports how many users were touched.
	ClearExpiredChallenges(ctx context.Context, now time.Time) (int64, error)

	// AppendLoginEvent records a login and trims history to keep entries.
	AppendLoginEvent(ctx context.Context, id string, at time.Time, keep int) error

	// ListLoginEvents returns the most recent events first.
	ListLoginEvents(ctx context.Context, id string, limit int) ([]domain.LoginEvent, error)
}

type Organizations interface {
	// CreateOrganization inserts an organization and its domains.
	CreateOrganization(ctx context.Context, o domain.Organization) error

	// GetOrganizationByID returns an organization with its domains loaded.
	GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error)

	// PutDomain sets the domain for label, replacing an existing value.
	PutDomain(ctx context.Context, organizationID, label, value string) error

	// DeleteDomain removes label. Returns ErrNotFound if it was not set.
	DeleteDomain(ctx context.Context, organizationID, label string) error
}

type Revocations interface {
	// RevokeToken records a token id as revoked until expiresAt.
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsTokenRevoked reports whether tokenID is revoked and not yet expired.
	IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error)

	// DeleteExpiredRevocations is housekeeping.
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}
