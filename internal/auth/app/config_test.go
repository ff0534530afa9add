package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, "tenantauth", cfg.Issuer)
	require.Equal(t, 12*time.Hour, cfg.TokenTTL)
	require.Equal(t, 2*time.Minute, cfg.OTPTTL)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, 8080, cfg.Port)
	require.Empty(t, cfg.CORSAllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AUTH_OTP_TTL", "5")
	t.Setenv("AUTH_TOKEN_TTL", "1h")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://auth@localhost/auth")
	t.Setenv("SMTP_USER", "mailer@techcorp.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")

	cfg := LoadConfig()

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 5*time.Minute, cfg.OTPTTL, "bare integers are minutes")
	require.Equal(t, time.Hour, cfg.TokenTTL)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, "mailer@techcorp.com", cfg.MailFrom, "sender falls back to the smtp user")
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 10, cfg.BcryptCost)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{StoreDriver: DriverSQLite, TokenTTL: time.Hour, OTPTTL: time.Minute, Env: "dev"}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "mysql" }, `unknown STORE_DRIVER "mysql"`},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }, "DATABASE_URL"},
		{"prod without mail", func(c *Config) { c.Env = "prod" }, "MAIL_HOST is required in production"},
		{"mail without sender", func(c *Config) { c.MailHost = "smtp.techcorp.com" }, "SMTP_FROM"},
		{"zero code lifetime", func(c *Config) { c.OTPTTL = 0 }, "lifetimes must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}

	require.NoError(t, valid().Validate())
}
