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

type OrganizationService struct {
	Store  store.Store
	Hasher *cryptox.Hasher

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *OrganizationService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Create registers an organization. When req.Admin is set the first
// administrator is created in the same transaction, always with the admin
// role.
func (s *OrganizationService) Create(
	ctx context.Context,
	req domain.NewOrganization,
) (domain.Organization, *domain.PublicUser, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Organization{}, nil, validationError("organization name is required")
	}

	domains := make(map[string]string, len(req.Domains))
	for label, value := range req.Domains {
		label, value = strings.TrimSpace(label), strings.TrimSpace(value)
		if label == "" || value == "" {
			return domain.Organization{}, nil, validationError("domain name and URL are required")
		}
		domains[label] = value
	}

	now := s.now()
	org := domain.Organization{
		ID:        idx.NewAt(now).String(),
		Name:      name,
		Domains:   domains,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var admin *domain.User
	if req.Admin != nil {
		nu := *req.Admin
		nu.Role = domain.RoleAdmin
		u, err := prepareUser(ctx, s.Hasher, org.ID, nu, now)
		if err != nil {
			return domain.Organization{}, nil, err
		}
		admin = &u
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return err
		}
		if admin == nil {
			return nil
		}
		return createUser(ctx, tx.Users(), *admin)
	})
	if err != nil {
		return domain.Organization{}, nil, err
	}

	l := slogx.FromContext(ctx)
	l.Info("organization created", slog.String("org_id", org.ID), slog.String("name", org.Name))
	if admin == nil {
		return org, nil, nil
	}

	l.Info("organization admin created", slog.String("org_id", org.ID), slog.String("user_id", admin.ID))
	pub := admin.Public()
	return org, &pub, nil
}

// AddDomain sets label to value on the admin's organization, replacing any
// previous value. organizationID may be empty; when given it must be the
// principal's own.
func (s *OrganizationService) AddDomain(
	ctx context.Context,
	p domain.Principal,
	organizationID, label, value string,
) (domain.Organization, error) {
	orgID, err := s.ownOrganization(p, organizationID)
	if err != nil {
		return domain.Organization{}, err
	}

	label, value = strings.TrimSpace(label), strings.TrimSpace(value)
	if label == "" || value == "" {
		return domain.Organization{}, validationError("domain name and URL are required")
	}

	err = s.Store.Organizations().PutDomain(ctx, orgID, label, value)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Organization{}, ErrOrganizationNotFound
	}
	if err != nil {
		return domain.Organization{}, err
	}

	slogx.FromContext(ctx).Info("organization domain set",
		slog.String("org_id", orgID), slog.String("label", label), slog.String("by", p.UserID))
	return s.get(ctx, orgID)
}

// RemoveDomain deletes label from the admin's organization.
func (s *OrganizationService) RemoveDomain(
	ctx context.Context,
	p domain.Principal,
	organizationID, label string,
) (domain.Organization, error) {
	orgID, err := s.ownOrganization(p, organizationID)
	if err != nil {
		return domain.Organization{}, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return domain.Organization{}, validationError("domain name is required")
	}

	if _, err := s.get(ctx, orgID); err != nil {
		return domain.Organization{}, err
	}

	err = s.Store.Organizations().DeleteDomain(ctx, orgID, label)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Organization{}, ErrDomainNotFound
	}
	if err != nil {
		return domain.Organization{}, err
	}

	slogx.FromContext(ctx).Info("organization domain removed",
		slog.String("org_id", orgID), slog.String("label", label), slog.String("by", p.UserID))
	return s.get(ctx, orgID)
}

// Get returns an organization by id.
func (s *OrganizationService) Get(ctx context.Context, p domain.Principal, organizationID string) (domain.Organization, error) {
	orgID, err := s.ownOrganization(p, organizationID)
	if err != nil {
		return domain.Organization{}, err
	}
	return s.get(ctx, orgID)
}

func (s *OrganizationService) get(ctx context.Context, orgID string) (domain.Organization, error) {
	org, err := s.Store.Organizations().GetOrganizationByID(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Organization{}, ErrOrganizationNotFound
	}
	return org, err
}

func (s *OrganizationService) ownOrganization(p domain.Principal, organizationID string) (string, error) {
	if err := requireAdmin(p); err != nil {
		return "", err
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID != "" && organizationID != p.OrganizationID {
		return "", ErrOrganizationMismatch
	}
	return p.OrganizationID, nil
}
