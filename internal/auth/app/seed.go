package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "Password123!"

var ErrAlreadySeeded = errors.New("demo data already present")

type demoUser struct {
	email  string
	role   domain.Role
	access []string
	mfa    bool
}

var demoUsers = []demoUser{
	{"developer@techcorp.com", domain.RoleDeveloper, []string{"dev.techcorp.com", "techcorp.com"}, true},
	{"user1@techcorp.com", domain.RoleUser, []string{"techcorp.com"}, false},
	{"user2@techcorp.com", domain.RoleUser, []string{"google.com", "techcorp.com"}, false},
}

// SeedDemoData creates the TechCorp Solutions organization with one admin,
// one developer and two users. It refuses to run twice.
func (app *Application) SeedDemoData(ctx context.Context) (domain.Organization, error) {
	existing, err := app.db.Users().ListUsersByEmail(ctx, "admin@techcorp.com")
	if err != nil {
		return domain.Organization{}, err
	}
	if len(existing) > 0 {
		return domain.Organization{}, ErrAlreadySeeded
	}

	org, admin, err := app.organizationService.Create(ctx, domain.NewOrganization{
		Name: "TechCorp Solutions",
		Domains: map[string]string{
			"Google":      "google.com",
			"Microsoft":   "microsoft.com",
			"Internal":    "techcorp.com",
			"Development": "dev.techcorp.com",
		},
		Admin: &domain.NewUser{
			Email:      "admin@techcorp.com",
			Name:       "TechCorp Admin",
			Password:   DemoPassword,
			Access:     []string{"google.com", "microsoft.com", "techcorp.com", "dev.techcorp.com"},
			MFAEnabled: true,
		},
	})
	if err != nil {
		return domain.Organization{}, fmt.Errorf("create organization: %w", err)
	}

	p := domain.Principal{
		UserID:         admin.ID,
		OrganizationID: org.ID,
		Email:          admin.Email,
		Role:           admin.Role,
	}
	for _, u := range demoUsers {
		_, err := app.adminService.CreateUser(ctx, p, domain.NewUser{
			Email:      u.email,
			Password:   DemoPassword,
			Role:       u.role,
			Access:     u.access,
			MFAEnabled: u.mfa,
		})
		if err != nil {
			return domain.Organization{}, fmt.Errorf("create %s: %w", u.email, err)
		}
	}

	app.logger.Info("demo data created", "org_id", org.ID, "users", len(demoUsers)+1)
	return org, nil
}
