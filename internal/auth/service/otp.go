package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/notify"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// DefaultOTPTTL is how long an emailed code stays redeemable.
const DefaultOTPTTL = 2 * time.Minute

// OTPIssuer creates one-time codes, stores their fingerprint on the user and
// hands the plaintext to the notifier. A new code replaces any pending one
// of the same kind.
type OTPIssuer struct {
	Store    store.Store
	Notifier notify.Notifier
	TTL      time.Duration
	Metrics  *metrics.Metrics

	// Generate defaults to cryptox.NewNumericCode.
	Generate func() (string, error)
}

func (o *OTPIssuer) ttl() time.Duration {
	if o.TTL <= 0 {
		return DefaultOTPTTL
	}
	return o.TTL
}

func (o *OTPIssuer) Issue(ctx context.Context, u domain.User, kind domain.ChallengeKind, now time.Time) error {
	generate := o.Generate
	if generate == nil {
		generate = cryptox.NewNumericCode
	}

	code, err := generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	ttl := o.ttl()
	ch := domain.Challenge{CodeHash: cryptox.Fingerprint(code), ExpiresAt: now.Add(ttl)}
	if err := o.Store.Users().SetChallenge(ctx, u.ID, kind, ch); err != nil {
		return fmt.Errorf("store %s challenge: %w", kind, err)
	}

	var msg notify.Message
	switch kind {
	case domain.ChallengeReset:
		msg = notify.ResetCode(u.Email, code, ttl)
	default:
		msg = notify.MFACode(u.Email, code, ttl)
	}
	if err := o.Notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("dispatch %s code: %w", kind, err)
	}

	o.Metrics.CodeDispatched(string(kind))
	slogx.FromContext(ctx).Info("one-time code dispatched",
		slog.String("user_id", u.ID),
		slog.String("kind", string(kind)),
		slog.Time("expires_at", ch.ExpiresAt),
	)
	return nil
}
