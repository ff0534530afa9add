package cryptox

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost matches the work factor existing hashes were produced with.
const DefaultBcryptCost = bcrypt.DefaultCost

// Password length bounds. bcrypt silently ignores anything past 72 bytes so
// longer inputs are rejected instead of truncated.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

var (
	ErrPasswordMismatch = errors.New("cryptox: password does not match")
	ErrPasswordTooShort = fmt.Errorf("cryptox: password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("cryptox: password must be at most %d bytes", MaxPasswordLength)
)

// Hasher wraps bcrypt with a bounded pool of concurrent hash operations so a
// burst of logins cannot starve the rest of the process of CPU.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher using the given bcrypt cost. A workers value of
// zero or less sizes the pool to GOMAXPROCS.
func NewHasher(cost, workers int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

// Cost reports the bcrypt cost new hashes are produced with.
func (h *Hasher) Cost() int { return h.cost }

// ValidatePassword checks the length bounds enforced on every new password.
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// Hash produces a salted bcrypt hash of password. It blocks until a worker
// slot is free or ctx is done.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("cryptox: hash password: %w", err)
	}
	return string(out), nil
}

// Verify compares password against a stored bcrypt hash. It returns
// ErrPasswordMismatch when they differ.
func (h *Hasher) Verify(ctx context.Context, password, hash string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("cryptox: verify password: %w", err)
	}
}

// VerifyDummy burns the same amount of work as Verify against a real hash and
// always reports a mismatch. Callers use it when the account does not exist
// so both paths take comparable time.
func (h *Hasher) VerifyDummy(ctx context.Context, password string) error {
	h.dummyOnce.Do(func() {
		// The plaintext is never disclosed, any random value will do.
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte(MustGenerateToken(TokenSize128)), h.cost)
	})

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	return ErrPasswordMismatch
}

// GeneratePassword returns a random password suitable for seeding accounts
// that will immediately go through a reset.
func GeneratePassword() (string, error) {
	return GenerateToken(TokenSize128)
}
