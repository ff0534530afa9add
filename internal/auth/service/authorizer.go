package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/revoke"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/aussiebroadwan/tenantauth/pkg/jwtx"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// Authorizer turns bearer tokens into principals and holds the checks that
// gate administrative operations.
type Authorizer struct {
	Verifier    jwtx.Verifier
	Revocations revoke.List

	// Now defaults to time.Now.
	Now func() time.Time
}

// RequireRole verifies token and returns its principal. Any token problem
// is ErrUnauthenticated; a role outside allowed is ErrForbidden. No roles
// means any authenticated user.
func (a *Authorizer) RequireRole(ctx context.Context, token string, allowed ...domain.Role) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, &Error{Kind: ErrUnauthenticated, Message: "missing bearer token"}
	}

	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}

	claims, err := a.Verifier.VerifyAt(token, now)
	if err != nil {
		slogx.FromContext(ctx).Debug("token verification failed", slog.Any("error", err))
		if errors.Is(err, jwtx.ErrExpired) {
			return domain.Principal{}, errTokenExpired
		}
		return domain.Principal{}, errTokenInvalid
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.OrganizationID == "" || claims.ID == "" {
		return domain.Principal{}, errTokenInvalid
	}

	if a.Revocations != nil {
		revoked, err := a.Revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return domain.Principal{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return domain.Principal{}, errTokenRevoked
		}
	}

	p := domain.Principal{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
		Role:           role,
		TokenID:        claims.ID,
		ExpiresAt:      claims.Expiry(),
	}
	if !p.HasRole(allowed...) {
		if len(allowed) == 1 && allowed[0] == domain.RoleAdmin {
			return domain.Principal{}, ErrAdminRequired
		}
		return domain.Principal{}, &Error{Kind: ErrForbidden, Message: "insufficient role"}
	}
	return p, nil
}

// RequireSameOrganization rejects a principal acting on a user of another
// organization.
func RequireSameOrganization(p domain.Principal, target domain.User) error {
	if p.OrganizationID == "" || p.OrganizationID != target.OrganizationID {
		return ErrOtherOrganization
	}
	return nil
}

// GuardLastAdmin fails when target is an admin and removing or demoting it
// would leave organizationID without one. Run it in the same transaction as
// the write it protects.
func GuardLastAdmin(ctx context.Context, users store.Users, organizationID string, target domain.User) error {
	if target.Role != domain.RoleAdmin {
		return nil
	}
	n, err := users.CountAdmins(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func requireAdmin(p domain.Principal) error {
	if p.Role != domain.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}
