package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// MFAService is the self-service side of the second factor: switching the
// emailed code on or off and enrolling an authenticator app.
type MFAService struct {
	Store  store.Store
	Issuer string // shown in authenticator apps

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// ToggleMFA switches the caller's own emailed second factor. A nil enabled
// flips the current setting.
func (s *MFAService) ToggleMFA(ctx context.Context, p domain.Principal, enabled *bool) (domain.PublicUser, error) {
	u, err := s.self(ctx, p)
	if err != nil {
		return domain.PublicUser{}, err
	}

	u, err = setMFA(ctx, s.Store.Users(), u, enabled)
	if err != nil {
		return domain.PublicUser{}, err
	}

	slogx.FromContext(ctx).Info("mfa toggled", slog.String("user_id", u.ID), slog.Bool("enabled", u.MFAEnabled))
	return u.Public(), nil
}

// EnrollTOTP generates an authenticator secret for the caller. It is not
// used for login until ConfirmTOTP succeeds.
func (s *MFAService) EnrollTOTP(ctx context.Context, p domain.Principal) (domain.TOTPEnrollment, error) {
	u, err := s.self(ctx, p)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}
	if u.TOTPEnabled {
		return domain.TOTPEnrollment{}, &Error{Kind: ErrConflict, Message: "authenticator already enabled"}
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Users().SetTOTPSecret(ctx, u.ID, key.Secret()); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("store totp secret: %w", err)
	}

	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: u.Email,
	}, nil
}

// ConfirmTOTP checks the first authenticator code and turns the second
// factor on.
func (s *MFAService) ConfirmTOTP(ctx context.Context, p domain.Principal, code string) (domain.PublicUser, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.PublicUser{}, validationError("code is required")
	}

	u, err := s.self(ctx, p)
	if err != nil {
		return domain.PublicUser{}, err
	}
	if u.TOTPSecret == "" {
		return domain.PublicUser{}, validationError("authenticator enrolment not started")
	}
	if u.TOTPEnabled {
		return domain.PublicUser{}, &Error{Kind: ErrConflict, Message: "authenticator already enabled"}
	}

	if ok, err := totp.ValidateCustom(code, u.TOTPSecret, s.now(), totpOpts); err != nil || !ok {
		return domain.PublicUser{}, ErrInvalidChallenge
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().EnableTOTP(ctx, u.ID); err != nil {
			return err
		}
		return tx.Users().SetMFAEnabled(ctx, u.ID, true)
	})
	if err != nil {
		return domain.PublicUser{}, err
	}

	u.TOTPEnabled = true
	u.MFAEnabled = true
	slogx.FromContext(ctx).Info("authenticator enabled", slog.String("user_id", u.ID))
	return u.Public(), nil
}

func (s *MFAService) self(ctx context.Context, p domain.Principal) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}
