package cryptox

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	token, err := GenerateToken(0)
	require.Error(t, err)
	require.Empty(t, token)

	require.Panics(t, func() {
		MustGenerateToken(-1)
	})
}

func TestFingerprint(t *testing.T) {
	fp1a := Fingerprint("123456")
	fp1b := Fingerprint("123456")
	fp2 := Fingerprint("654321")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2)
	require.Len(t, fp1a, 43, "SHA-256 base64url should be 43 chars")

	require.True(t, FingerprintEqual("123456", fp1a))
	require.False(t, FingerprintEqual("123457", fp1a))
}

func TestNewNumericCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 500 {
		code, err := NewNumericCode()
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)

		seen[code] = struct{}{}
	}

	// 500 draws from 900k values should essentially never collide much
	require.Greater(t, len(seen), 490)
}

func TestLoadOrGenerateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "jwt.secret")

	first, err := LoadOrGenerateSecret(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(first), MinSecretLength)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := LoadOrGenerateSecret(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "existing secret must be reused")
}

func TestLoadOrGenerateSecret_TooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.secret")
	require.NoError(t, os.WriteFile(path, []byte("tiny\n"), 0600))

	_, err := LoadOrGenerateSecret(path)
	require.ErrorIs(t, err, ErrSecretTooShort)
}
