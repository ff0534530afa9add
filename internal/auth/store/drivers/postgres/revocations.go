package postgres

import (
	"context"
	"time"
)

type revocationsRepo struct {
	db dbtx
}

func (r *revocationsRepo) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2)
		ON CONFLICT (token_id) DO NOTHING`,
		tokenID, expiresAt.UTC())
	return err
}

func (r *revocationsRepo) IsTokenRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1 AND expires_at > $2)`,
		tokenID, now.UTC(),
	).Scan(&revoked)
	return revoked, err
}

func (r *revocationsRepo) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
