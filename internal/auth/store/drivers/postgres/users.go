package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, organization_id, email, name, password_hash, role, mfa_enabled,
	mfa_code_hash, mfa_expires_at, mfa_attempts, reset_code_hash, reset_expires_at, reset_attempts,
	totp_secret, totp_enabled, external_id, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u                                          domain.User
		role                                       string
		mfaHash, resetHash, totpSecret, externalID *string
		mfaExpires, resetExpires                   *time.Time
		mfaAttempts, resetAttempts                 int
	)

	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.MFAEnabled,
		&mfaHash, &mfaExpires, &mfaAttempts, &resetHash, &resetExpires, &resetAttempts,
		&totpSecret, &u.TOTPEnabled, &externalID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	u.TOTPSecret = deref(totpSecret)
	u.ExternalID = deref(externalID)
	if mfaHash != nil && mfaExpires != nil {
		u.MFAChallenge = &domain.Challenge{CodeHash: *mfaHash, ExpiresAt: mfaExpires.UTC(), Attempts: mfaAttempts}
	}
	if resetHash != nil && resetExpires != nil {
		u.ResetChallenge = &domain.Challenge{
			CodeHash:  *resetHash,
			ExpiresAt: resetExpires.UTC(),
			Attempts:  resetAttempts,
		}
	}
	return u, nil
}

func (r *usersRepo) getOne(ctx context.Context, where string, args ...any) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	if u.Access, err = r.loadAccess(ctx, u.ID); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *usersRepo) list(ctx context.Context, where string, args ...any) ([]domain.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, err
	}

	// Rows are fully drained above; a tx connection cannot run a second
	// query while a result set is open.
	for i := range users {
		if users[i].Access, err = r.loadAccess(ctx, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *usersRepo) loadAccess(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT entry FROM user_access WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	access, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if access == nil {
		access = []string{}
	}
	return access, nil
}

func (r *usersRepo) insertAccess(ctx context.Context, userID string, access []string) error {
	for i, entry := range domain.NormalizeAccess(access) {
		_, err := r.db.Exec(ctx,
			`INSERT INTO user_access (user_id, position, entry) VALUES ($1, $2, $3)`, userID, i, entry)
		if err != nil {
			return mapConstraint(err)
		}
	}
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, organizationID, email string) (domain.User, error) {
	return r.getOne(ctx, `organization_id = $1 AND email = $2`, organizationID, domain.NormalizeEmail(email))
}

func (r *usersRepo) ListUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	return r.list(ctx, `email = $1`, domain.NormalizeEmail(email))
}

func (r *usersRepo) GetUserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	return r.getOne(ctx, `external_id = $1`, externalID)
}

func (r *usersRepo) ListUsersByOrganization(ctx context.Context, organizationID string) ([]domain.User, error) {
	return r.list(ctx, `organization_id = $1`, organizationID)
}

// CountAdmins locks the admin rows it counts, so two transactions guarding
// the last admin serialize on them instead of both seeing two admins.
func (r *usersRepo) CountAdmins(ctx context.Context, organizationID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT id FROM users WHERE organization_id = $1 AND role = $2 FOR UPDATE
		) admins`,
		organizationID, string(domain.RoleAdmin),
	).Scan(&n)
	return n, err
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, organization_id, email, name, password_hash, role, mfa_enabled,
			external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		u.ID, u.OrganizationID, domain.NormalizeEmail(u.Email), u.Name, u.PasswordHash,
		string(u.Role), u.MFAEnabled, nullable(u.ExternalID), created.UTC(),
	)
	if err != nil {
		return mapConstraint(err)
	}
	return r.insertAccess(ctx, u.ID, u.Access)
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id))
}

func (r *usersRepo) UpdateName(ctx context.Context, id, name string) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE users SET name = $1, updated_at = now() WHERE id = $2`, name, id))
}

func (r *usersRepo) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE users SET role = $1, updated_at = now() WHERE id = $2`, string(role), id))
}

func (r *usersRepo) ReplaceAccess(ctx context.Context, id string, access []string) error {
	if err := expectOne(r.db.Exec(ctx, `UPDATE users SET updated_at = now() WHERE id = $1`, id)); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM user_access WHERE user_id = $1`, id); err != nil {
		return err
	}
	return r.insertAccess(ctx, id, access)
}

func (r *usersRepo) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	return expectOne(r.db.Exec(ctx, `
		UPDATE users
		SET mfa_enabled = $1,
			mfa_code_hash = CASE WHEN $1 THEN mfa_code_hash ELSE NULL END,
			mfa_expires_at = CASE WHEN $1 THEN mfa_expires_at ELSE NULL END,
			mfa_attempts = CASE WHEN $1 THEN mfa_attempts ELSE 0 END,
			updated_at = now()
		WHERE id = $2`, enabled, id))
}

func (r *usersRepo) LinkExternalID(ctx context.Context, id, externalID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET external_id = $1, updated_at = now() WHERE id = $2`, externalID, id)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOne(tag, nil)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE users SET totp_secret = $1, totp_enabled = FALSE, updated_at = now() WHERE id = $2`,
		secret, id))
}

func (r *usersRepo) EnableTOTP(ctx context.Context, id string) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE users SET totp_enabled = TRUE, updated_at = now() WHERE id = $1 AND totp_secret IS NOT NULL`,
		id))
}

type challengeCols struct {
	hash, expires, attempts string
}

func challengeColumns(kind domain.ChallengeKind) (challengeCols, error) {
	switch kind {
	case domain.ChallengeMFA:
		return challengeCols{"mfa_code_hash", "mfa_expires_at", "mfa_attempts"}, nil
	case domain.ChallengeReset:
		return challengeCols{"reset_code_hash", "reset_expires_at", "reset_attempts"}, nil
	default:
		return challengeCols{}, fmt.Errorf("postgres: unknown challenge kind %q", kind)
	}
}

func (r *usersRepo) SetChallenge(
	ctx context.Context,
	id string,
	kind domain.ChallengeKind,
	ch domain.Challenge,
) error {
	c, err := challengeColumns(kind)
	if err != nil {
		return err
	}
	return expectOne(r.db.Exec(ctx,
		`UPDATE users SET `+c.hash+` = $1, `+c.expires+` = $2, `+c.attempts+` = 0, updated_at = now() WHERE id = $3`,
		ch.CodeHash, ch.ExpiresAt.UTC(), id))
}

func (r *usersRepo) ClaimChallengeAttempt(
	ctx context.Context,
	id string,
	kind domain.ChallengeKind,
	maxAttempts int,
	now time.Time,
) (int, error) {
	c, err := challengeColumns(kind)
	if err != nil {
		return 0, err
	}

	var spent int
	err = r.db.QueryRow(ctx, `
		UPDATE users
		SET `+c.attempts+` = `+c.attempts+` + 1
		WHERE id = $1 AND `+c.hash+` IS NOT NULL AND `+c.expires+` > $2 AND `+c.attempts+` < $3
		RETURNING `+c.attempts,
		id, now.UTC(), maxAttempts,
	).Scan(&spent)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return spent, nil
}

func (r *usersRepo) ClearChallenge(ctx context.Context, id string, kind domain.ChallengeKind) error {
	c, err := challengeColumns(kind)
	if err != nil {
		return err
	}
	return expectOne(r.db.Exec(ctx,
		`UPDATE users SET `+c.hash+` = NULL, `+c.expires+` = NULL, `+c.attempts+` = 0, updated_at = now() WHERE id = $1`,
		id))
}

func (r *usersRepo) ConsumeChallenge(
	ctx context.Context,
	id string,
	kind domain.ChallengeKind,
	codeHash string,
	now time.Time,
) error {
	c, err := challengeColumns(kind)
	if err != nil {
		return err
	}
	return expectOne(r.db.Exec(ctx, `
		UPDATE users
		SET `+c.hash+` = NULL, `+c.expires+` = NULL, `+c.attempts+` = 0, updated_at = now()
		WHERE id = $1 AND `+c.hash+` = $2 AND `+c.expires+` > $3`,
		id, codeHash, now.UTC()))
}

func (r *usersRepo) ResetPassword(ctx context.Context, id, codeHash, newPasswordHash string, now time.Time) error {
	return expectOne(r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $1,
			reset_code_hash = NULL, reset_expires_at = NULL, reset_attempts = 0,
			mfa_code_hash = NULL, mfa_expires_at = NULL, mfa_attempts = 0,
			updated_at = now()
		WHERE id = $2 AND reset_code_hash = $3 AND reset_expires_at > $4`,
		newPasswordHash, id, codeHash, now.UTC()))
}

func (r *usersRepo) ClearExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, kind := range []domain.ChallengeKind{domain.ChallengeMFA, domain.ChallengeReset} {
		c, err := challengeColumns(kind)
		if err != nil {
			return total, err
		}
		tag, err := r.db.Exec(ctx,
			`UPDATE users SET `+c.hash+` = NULL, `+c.expires+` = NULL, `+c.attempts+` = 0 WHERE `+c.expires+` <= $1`,
			now.UTC())
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (r *usersRepo) AppendLoginEvent(ctx context.Context, id string, at time.Time, keep int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO login_history (user_id, logged_in_at) VALUES ($1, $2)`, id, at.UTC())
	if err != nil {
		return mapConstraint(err)
	}

	_, err = r.db.Exec(ctx, `
		DELETE FROM login_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM login_history WHERE user_id = $1
			ORDER BY logged_in_at DESC, id DESC LIMIT $2
		)`, id, keep)
	return err
}

func (r *usersRepo) ListLoginEvents(ctx context.Context, id string, limit int) ([]domain.LoginEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT logged_in_at FROM login_history WHERE user_id = $1
		ORDER BY logged_in_at DESC, id DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LoginEvent, error) {
		var at time.Time
		err := row.Scan(&at)
		return domain.LoginEvent{At: at.UTC()}, err
	})
}

var _ store.Users = (*usersRepo)(nil)
