package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
)

const userColumns = `id, organization_id, email, name, password_hash, role, mfa_enabled,
	mfa_code_hash, mfa_expires_at, mfa_attempts, reset_code_hash, reset_expires_at, reset_attempts,
	totp_secret, totp_enabled, external_id, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                                          domain.User
		role                                       string
		mfaEnabled, totpEnabled                    int
		mfaHash, resetHash, totpSecret, externalID sql.NullString
		mfaExpires, resetExpires                   sql.NullInt64
		mfaAttempts, resetAttempts                 int
		createdAt, updatedAt                       int64
	)

	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.PasswordHash, &role, &mfaEnabled,
		&mfaHash, &mfaExpires, &mfaAttempts, &resetHash, &resetExpires, &resetAttempts,
		&totpSecret, &totpEnabled, &externalID, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	u.MFAEnabled = mfaEnabled != 0
	u.TOTPEnabled = totpEnabled != 0
	u.TOTPSecret = nullString(totpSecret)
	u.ExternalID = nullString(externalID)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	if mfaHash.Valid && mfaExpires.Valid {
		u.MFAChallenge = &domain.Challenge{
			CodeHash:  mfaHash.String,
			ExpiresAt: nullMillis(mfaExpires),
			Attempts:  mfaAttempts,
		}
	}
	if resetHash.Valid && resetExpires.Valid {
		u.ResetChallenge = &domain.Challenge{
			CodeHash:  resetHash.String,
			ExpiresAt: nullMillis(resetExpires),
			Attempts:  resetAttempts,
		}
	}
	return u, nil
}

func (r *usersRepo) getOne(ctx context.Context, where string, args ...any) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	access, err := r.loadAccess(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	u.Access = access
	return u, nil
}

// list collects the rows before touching access lists; with a single
// connection a second query cannot run while rows are still open.
func (r *usersRepo) list(ctx context.Context, where string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range users {
		access, err := r.loadAccess(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		users[i].Access = access
	}
	return users, nil
}

func (r *usersRepo) loadAccess(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry FROM user_access WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	access := []string{}
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, err
		}
		access = append(access, entry)
	}
	return access, rows.Err()
}

func (r *usersRepo) insertAccess(ctx context.Context, userID string, access []string) error {
	for i, entry := range domain.NormalizeAccess(access) {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO user_access (user_id, position, entry) VALUES (?, ?, ?)`, userID, i, entry)
		if err != nil {
			return mapConstraint(err)
		}
	}
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, organizationID, email string) (domain.User, error) {
	return r.getOne(ctx, `organization_id = ? AND email = ?`, organizationID, domain.NormalizeEmail(email))
}

func (r *usersRepo) ListUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	return r.list(ctx, `email = ?`, domain.NormalizeEmail(email))
}

func (r *usersRepo) GetUserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	return r.getOne(ctx, `external_id = ?`, externalID)
}

func (r *usersRepo) ListUsersByOrganization(ctx context.Context, organizationID string) ([]domain.User, error) {
	return r.list(ctx, `organization_id = ?`, organizationID)
}

func (r *usersRepo) CountAdmins(ctx context.Context, organizationID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE organization_id = ? AND role = ?`,
		organizationID, string(domain.RoleAdmin),
	).Scan(&n)
	return n, err
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, name, password_hash, role, mfa_enabled,
			external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.OrganizationID, domain.NormalizeEmail(u.Email), u.Name, u.PasswordHash,
		string(u.Role), boolInt(u.MFAEnabled), stringNull(u.ExternalID),
		toMillis(created), toMillis(created),
	)
	if err != nil {
		return mapConstraint(err)
	}

	return r.insertAccess(ctx, u.ID, u.Access)
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func (r *usersRepo) UpdateName(ctx context.Context, id, name string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`, name, toMillis(time.Now()), id))
}

func (r *usersRepo) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), toMillis(time.Now()), id))
}

func (r *usersRepo) ReplaceAccess(ctx context.Context, id string, access []string) error {
	err := expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET updated_at = ? WHERE id = ?`, toMillis(time.Now()), id))
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_access WHERE user_id = ?`, id); err != nil {
		return err
	}
	return r.insertAccess(ctx, id, access)
}

func (r *usersRepo) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	if enabled {
		return expectOne(r.db.ExecContext(ctx,
			`UPDATE users SET mfa_enabled = 1, updated_at = ? WHERE id = ?`, toMillis(time.Now()), id))
	}
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = 0, mfa_code_hash = NULL, mfa_expires_at = NULL, mfa_attempts = 0, updated_at = ?
		WHERE id = ?`, toMillis(time.Now()), id))
}

func (r *usersRepo) LinkExternalID(ctx context.Context, id, externalID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET external_id = ?, updated_at = ? WHERE id = ?`,
		externalID, toMillis(time.Now()), id)
	if err != nil {
		return mapConstraint(err)
	}
	return expectOne(res, nil)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, totp_enabled = 0, updated_at = ? WHERE id = ?`,
		secret, toMillis(time.Now()), id))
}

func (r *usersRepo) EnableTOTP(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET totp_enabled = 1, updated_at = ? WHERE id = ? AND totp_secret IS NOT NULL`,
		toMillis(time.Now()), id))
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
		return challengeCols{}, fmt.Errorf("sqlite: unknown challenge kind %q", kind)
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
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET `+c.hash+` = ?, `+c.expires+` = ?, `+c.attempts+` = 0, updated_at = ? WHERE id = ?`,
		ch.CodeHash, toMillis(ch.ExpiresAt), toMillis(time.Now()), id))
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
	err = r.db.QueryRowContext(ctx, `
		UPDATE users
		SET `+c.attempts+` = `+c.attempts+` + 1
		WHERE id = ? AND `+c.hash+` IS NOT NULL AND `+c.expires+` > ? AND `+c.attempts+` < ?
		RETURNING `+c.attempts,
		id, toMillis(now), maxAttempts,
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
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET `+c.hash+` = NULL, `+c.expires+` = NULL, `+c.attempts+` = 0, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), id))
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
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE users
		SET `+c.hash+` = NULL, `+c.expires+` = NULL, `+c.attempts+` = 0, updated_at = ?
		WHERE id = ? AND `+c.hash+` = ? AND `+c.expires+` > ?`,
		toMillis(now), id, codeHash, toMillis(now)))
}

func (r *usersRepo) ResetPassword(ctx context.Context, id, codeHash, newPasswordHash string, now time.Time) error {
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?,
			reset_code_hash = NULL, reset_expires_at = NULL, reset_attempts = 0,
			mfa_code_hash = NULL, mfa_expires_at = NULL, mfa_attempts = 0,
			updated_at = ?
		WHERE id = ? AND reset_code_hash = ? AND reset_expires_at > ?`,
		newPasswordHash, toMillis(now), id, codeHash, toMillis(now)))
}

func (r *usersRepo) ClearExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, kind := range []domain.ChallengeKind{domain.ChallengeMFA, domain.ChallengeReset} {
		c, err := challengeColumns(kind)
		if err != nil {
			return total, err
		}
		res, err := r.db.ExecContext(ctx,
			`UPDATE users SET `+c.hash+` = NULL, `+c.expires+` = NULL, `+c.attempts+` = 0 WHERE `+c.expires+` <= ?`,
			toMillis(now))
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *usersRepo) AppendLoginEvent(ctx context.Context, id string, at time.Time, keep int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_history (user_id, logged_in_at) VALUES (?, ?)`, id, toMillis(at))
	if err != nil {
		return mapConstraint(err)
	}

	_, err = r.db.ExecContext(ctx, `
		DELETE FROM login_history
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM login_history WHERE user_id = ?
			ORDER BY logged_in_at DESC, id DESC LIMIT ?
		)`, id, id, keep)
	return err
}

func (r *usersRepo) ListLoginEvents(ctx context.Context, id string, limit int) ([]domain.LoginEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT logged_in_at FROM login_history WHERE user_id = ?
		ORDER BY logged_in_at DESC, id DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []domain.LoginEvent
	for rows.Next() {
		var at int64
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		events = append(events, domain.LoginEvent{At: fromMillis(at)})
	}
	return events, rows.Err()
}

var _ store.Users = (*usersRepo)(nil)
