package cryptox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// MinSecretLength is the shortest HMAC secret accepted for signing tokens.
const MinSecretLength = 32

var ErrSecretTooShort = errors.New("cryptox: secret is too short")

// LoadOrGenerateSecret reads a signing secret from path, creating the file
// with a fresh random secret on first start.
func LoadOrGenerateSecret(path string) (string, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		secret, err := GenerateToken(TokenSize256 * 2)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
			return "", err
		}
		return secret, nil
	case err != nil:
		return "", err
	}

	secret := strings.TrimSpace(string(raw))
	if len(secret) < MinSecretLength {
		return "", ErrSecretTooShort
	}
	return secret, nil
}
