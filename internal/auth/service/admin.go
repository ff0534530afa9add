package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/idx"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// AdminService holds the user management operations open to organization
// admins. Every call is scoped to the acting principal's organization.
type AdminService struct {
	Store  store.Store
	Hasher *cryptox.Hasher

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *AdminService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// CreateUser adds an account to the admin's organization.
func (s *AdminService) CreateUser(ctx context.Context, p domain.Principal, nu domain.NewUser) (domain.PublicUser, error) {
	if err := requireAdmin(p); err != nil {
		return domain.PublicUser{}, err
	}

	u, err := prepareUser(ctx, s.Hasher, p.OrganizationID, nu, s.now())
	if err != nil {
		return domain.PublicUser{}, err
	}

	if err := createUser(ctx, s.Store.Users(), u); err != nil {
		return domain.PublicUser{}, err
	}

	slogx.FromContext(ctx).Info("user created",
		slog.String("user_id", u.ID),
		slog.String("org_id", u.OrganizationID),
		slog.String("role", u.Role.String()),
		slog.String("by", p.UserID),
	)
	return u.Public(), nil
}

// prepareUser validates nu and hashes its password. It runs outside any
// transaction since hashing is slow.
func prepareUser(
	ctx context.Context,
	hasher *cryptox.Hasher,
	organizationID string,
	nu domain.NewUser,
	now time.Time,
) (domain.User, error) {
	email := domain.NormalizeEmail(nu.Email)
	if email == "" || nu.Password == "" {
		return domain.User{}, validationError("email and password are required")
	}
	if !strings.Contains(email, "@") {
		return domain.User{}, validationError("invalid email address")
	}

	role, err := domain.ParseRole(string(nu.Role))
	if err != nil {
		return domain.User{}, validationError("invalid role %q", nu.Role)
	}

	if err := cryptox.ValidatePassword(nu.Password); err != nil {
		return domain.User{}, passwordError(err)
	}
	hash, err := hasher.Hash(ctx, nu.Password)
	if err != nil {
		return domain.User{}, passwordError(err)
	}

	return domain.User{
		ID:             idx.NewAt(now).String(),
		OrganizationID: organizationID,
		Email:          email,
		Name:           strings.TrimSpace(nu.Name),
		PasswordHash:   hash,
		Role:           role,
		Access:         domain.NormalizeAccess(nu.Access),
		MFAEnabled:     nu.MFAEnabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func createUser(ctx context.Context, users store.Users, u domain.User) error {
	err := users.CreateUser(ctx, u)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrEmailTaken
	case errors.Is(err, store.ErrNotFound):
		return ErrOrganizationNotFound
	}
	return err
}

// ListUsers returns every user of the admin's organization.
func (s *AdminService) ListUsers(ctx context.Context, p domain.Principal) ([]domain.PublicUser, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	users, err := s.Store.Users().ListUsersByOrganization(ctx, p.OrganizationID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// DeleteUser removes a user of the same organization, keeping at least one
// admin.
func (s *AdminService) DeleteUser(ctx context.Context, p domain.Principal, userID string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		target, err := targetUser(ctx, tx, p, userID)
		if err != nil {
			return err
		}
		if err := GuardLastAdmin(ctx, tx.Users(), target.OrganizationID, target); err != nil {
			return err
		}
		return tx.Users().DeleteUser(ctx, target.ID)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", userID), slog.String("by", p.UserID))
	return nil
}

// SetUserMFA switches a user's emailed second factor. A nil enabled flips
// the current setting.
func (s *AdminService) SetUserMFA(
	ctx context.Context,
	p domain.Principal,
	userID string,
	enabled *bool,
) (domain.PublicUser, error) {
	if err := requireAdmin(p); err != nil {
		return domain.PublicUser{}, err
	}

	var updated domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		target, err := targetUser(ctx, tx, p, userID)
		if err != nil {
			return err
		}
		updated, err = setMFA(ctx, tx.Users(), target, enabled)
		return err
	})
	if err != nil {
		return domain.PublicUser{}, err
	}

	slogx.FromContext(ctx).Info("user mfa changed",
		slog.String("user_id", updated.ID),
		slog.Bool("enabled", updated.MFAEnabled),
		slog.String("by", p.UserID),
	)
	return updated.Public(), nil
}

func setMFA(ctx context.Context, users store.Users, u domain.User, enabled *bool) (domain.User, error) {
	want := !u.MFAEnabled
	if enabled != nil {
		want = *enabled
	}
	if err := users.SetMFAEnabled(ctx, u.ID, want); err != nil {
		return domain.User{}, err
	}
	u.MFAEnabled = want
	if !want {
		u.MFAChallenge = nil
	}
	return u, nil
}

// UpdateRole changes a user's role. Demoting the last admin is refused.
func (s *AdminService) UpdateRole(
	ctx context.Context,
	p domain.Principal,
	userID string,
	role string,
) (domain.PublicUser, error) {
	if err := requireAdmin(p); err != nil {
		return domain.PublicUser{}, err
	}

	newRole, err := domain.ParseRole(role)
	if err != nil || strings.TrimSpace(role) == "" {
		return domain.PublicUser{}, validationError("role must be one of admin, developer, user")
	}

	var updated domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		target, err := targetUser(ctx, tx, p, userID)
		if err != nil {
			return err
		}
		if newRole != domain.RoleAdmin {
			if err := GuardLastAdmin(ctx, tx.Users(), target.OrganizationID, target); err != nil {
				return err
			}
		}
		if err := tx.Users().UpdateRole(ctx, target.ID, newRole); err != nil {
			return err
		}
		target.Role = newRole
		updated = target
		return nil
	})
	if err != nil {
		return domain.PublicUser{}, err
	}

	slogx.FromContext(ctx).Info("user role changed",
		slog.String("user_id", updated.ID),
		slog.String("role", newRole.String()),
		slog.String("by", p.UserID),
	)
	return updated.Public(), nil
}

// UpdateAccess replaces a user's access list.
func (s *AdminService) UpdateAccess(
	ctx context.Context,
	p domain.Principal,
	userID string,
	access []string,
) (domain.PublicUser, error) {
	if err := requireAdmin(p); err != nil {
		return domain.PublicUser{}, err
	}
	if access == nil {
		return domain.PublicUser{}, validationError("access array required")
	}

	var updated domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		target, err := targetUser(ctx, tx, p, userID)
		if err != nil {
			return err
		}
		normalized := domain.NormalizeAccess(access)
		if err := tx.Users().ReplaceAccess(ctx, target.ID, normalized); err != nil {
			return err
		}
		target.Access = normalized
		updated = target
		return nil
	})
	if err != nil {
		return domain.PublicUser{}, err
	}

	slogx.FromContext(ctx).Info("user access changed",
		slog.String("user_id", updated.ID),
		slog.Int("entries", len(updated.Access)),
		slog.String("by", p.UserID),
	)
	return updated.Public(), nil
}

// targetUser loads userID and checks it shares the principal's organization.
func targetUser(ctx context.Context, tx store.Tx, p domain.Principal, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, validationError("user id is required")
	}

	u, err := tx.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}

	if err := RequireSameOrganization(p, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
