package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/jwtx"
)

// InitSigningKeys builds the HS256 signer and verifier for session tokens.
//
// The secret comes from JWT_SECRET when set. Otherwise it is read from
// AUTH_SECRET_FILE, which is created with a random secret on first start so
// sessions survive restarts.
func InitSigningKeys(cfg Config, logger *slog.Logger) (*jwtx.HS256Signer, *jwtx.HS256Verifier, error) {
	secret := cfg.Secret
	if secret == "" {
		var err error
		secret, err = cryptox.LoadOrGenerateSecret(cfg.SecretFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load signing secret from %s: %w", cfg.SecretFile, err)
		}
		logger.Info("signing secret loaded", "path", cfg.SecretFile)
	} else if len(secret) < cryptox.MinSecretLength {
		return nil, nil, fmt.Errorf("JWT_SECRET: %w", cryptox.ErrSecretTooShort)
	}

	signer, err := jwtx.NewSignerHS256([]byte(secret))
	if err != nil {
		return nil, nil, fmt.Errorf("create signer: %w", err)
	}
	verifier, err := jwtx.NewVerifierHS256([]byte(secret), cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("create verifier: %w", err)
	}

	logger.Info("session signing ready", "algorithm", "HS256", "issuer", cfg.Issuer, "ttl", cfg.TokenTTL)
	return signer, verifier, nil
}
