// Package revoke tracks session tokens that were logged out before their
// natural expiry.
package revoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces revocation keys in a shared redis.
const DefaultKeyPrefix = "tenantauth:revoked:"

var ErrUnavailable = errors.New("revoke: backend unavailable")

// List records revoked token ids until the token would have expired anyway.
type List interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisList keeps revocations as keys with a TTL, so expiry is handled by
// redis itself.
type RedisList struct {
	Client redis.UniversalClient
	Prefix string
	Now    func() time.Time
}

func NewRedisList(client redis.UniversalClient) *RedisList {
	return &RedisList{Client: client, Prefix: DefaultKeyPrefix, Now: time.Now}
}

func (l *RedisList) key(tokenID string) string {
	return l.Prefix + tokenID
}

func (l *RedisList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.Now())
	if ttl <= 0 {
		return nil
	}
	if err := l.Client.Set(ctx, l.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.Client.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping reports whether redis answers; used by the readiness probe.
func (l *RedisList) Ping(ctx context.Context) error {
	return l.Client.Ping(ctx).Err()
}

// StoreList keeps revocations in the primary database. Expired rows are
// removed by housekeeping.
type StoreList struct {
	Store store.Store
	Now   func() time.Time
}

func NewStoreList(s store.Store) *StoreList {
	return &StoreList{Store: s, Now: time.Now}
}

func (l *StoreList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if !expiresAt.After(l.Now()) {
		return nil
	}
	return l.Store.Revocations().RevokeToken(ctx, tokenID, expiresAt)
}

func (l *StoreList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return l.Store.Revocations().IsTokenRevoked(ctx, tokenID, l.Now())
}
