package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
)

type organizationsRepo struct {
	db dbtx
}

func (r *organizationsRepo) CreateOrganization(ctx context.Context, o domain.Organization) error {
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		o.ID, o.Name, toMillis(created), toMillis(created))
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
	var (
		o                    domain.Organization
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE id = ?`, id,
	).Scan(&o.ID, &o.Name, &createdAt, &updatedAt)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updatedAt)

	rows, err := r.db.QueryContext(ctx,
		`SELECT label, domain FROM organization_domains WHERE organization_id = ?`, id)
	if err != nil {
		return domain.Organization{}, err
	}
	defer func() { _ = rows.Close() }()

	o.Domains = map[string]string{}
	for rows.Next() {
		var label, value string
		if err := rows.Scan(&label, &value); err != nil {
			return domain.Organization{}, err
		}
		o.Domains[label] = value
	}
	return o, rows.Err()
}

func (r *organizationsRepo) PutDomain(ctx context.Context, organizationID, label, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_domains (organization_id, label, domain) VALUES (?, ?, ?)
		ON CONFLICT (organization_id, label) DO UPDATE SET domain = excluded.domain`,
		organizationID, label, value)
	if err != nil {
		return mapConstraint(err)
	}
	return r.touch(ctx, organizationID)
}

func (r *organizationsRepo) DeleteDomain(ctx context.Context, organizationID, label string) error {
	err := expectOne(r.db.ExecContext(ctx,
		`DELETE FROM organization_domains WHERE organization_id = ? AND label = ?`,
		organizationID, label))
	if err != nil {
		return err
	}
	return r.touch(ctx, organizationID)
}

func (r *organizationsRepo) touch(ctx context.Context, organizationID string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE organizations SET updated_at = ? WHERE id = ?`, toMillis(time.Now()), organizationID))
}
