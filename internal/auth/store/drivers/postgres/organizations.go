package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/jackc/pgx/v5"
)

type organizationsRepo struct {
	db dbtx
}

func (r *organizationsRepo) CreateOrganization(ctx context.Context, o domain.Organization) error {
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		o.ID, o.Name, created.UTC())
	if err != nil {
		return mapConstraint(err)
	}

	for label, value := range o.Domains {
		if err := r.PutDomain(ctx, o.ID, label, value); err != nil {
			return err
		}
	}
	return nil
}

func (r *organizationsRepo) GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT label, domain FROM organization_domains WHERE organization_id = $1`, id)
	if err != nil {
		return domain.Organization{}, err
	}
	defer rows.Close()

	o.Domains = map[string]string{}
	var label, value string
	_, err = pgx.ForEachRow(rows, []any{&label, &value}, func() error {
		o.Domains[label] = value
		return nil
	})
	return o, err
}

func (r *organizationsRepo) PutDomain(ctx context.Context, organizationID, label, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO organization_domains (organization_id, label, domain) VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, label) DO UPDATE SET domain = EXCLUDED.domain`,
		organizationID, label, value)
	if err != nil {
		return mapConstraint(err)
	}
	return r.touch(ctx, organizationID)
}

func (r *organizationsRepo) DeleteDomain(ctx context.Context, organizationID, label string) error {
	err := expectOne(r.db.Exec(ctx,
		`DELETE FROM organization_domains WHERE organization_id = $1 AND label = $2`,
		organizationID, label))
	if err != nil {
		return err
	}
	return r.touch(ctx, organizationID)
}

func (r *organizationsRepo) touch(ctx context.Context, organizationID string) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE organizations SET updated_at = now() WHERE id = $1`, organizationID))
}
