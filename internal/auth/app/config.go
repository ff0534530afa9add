package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer     string        // Optional: issuer claim for session tokens (default: tenantauth)
	Secret     string        // Optional: HS256 signing secret, at least 32 bytes (JWT_SECRET)
	SecretFile string        // Optional: file the secret is loaded from or generated into (default: ./jwt-secret)
	TokenTTL   time.Duration // Optional: session token lifetime (default: 12h)
	OTPTTL     time.Duration // Optional: emailed code lifetime (default: 2m)

	BcryptCost   int // Optional: bcrypt cost (default: 10)
	HashWorkers  int // Optional: concurrent bcrypt operations (default: GOMAXPROCS)
	StoreDriver  string
	DatabaseFile string // sqlite only (default: ./auth.db)
	DatabaseURL  string // postgres only

	RedisAddr     string // Optional: keeps revoked tokens in redis instead of the database
	RedisPassword string

	MailHost string // Optional outside prod: without it codes are only logged
	MailPort int
	MailUser string
	MailPass string
	MailFrom string

	GoogleClientID     string   // Optional: enables federated login
	CORSAllowedOrigins []string // Optional: empty disables CORS

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LoadConfig reads the environment, after merging a local .env file when
// one exists. Variables already set win over the file.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Issuer:     getEnvOrDefault("AUTH_ISSUER", "tenantauth"),
		Secret:     os.Getenv("JWT_SECRET"),
		SecretFile: getEnvOrDefault("AUTH_SECRET_FILE", "jwt-secret"),
		TokenTTL:   getEnvDurationOrDefault("AUTH_TOKEN_TTL", 12*time.Hour),
		OTPTTL:     getEnvDurationOrDefault("AUTH_OTP_TTL", 2*time.Minute),

		BcryptCost:   getEnvIntOrDefault("AUTH_BCRYPT_COST", 10),
		HashWorkers:  getEnvIntOrDefault("AUTH_HASH_WORKERS", 0),
		StoreDriver:  strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverSQLite)),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MailHost: os.Getenv("MAIL_HOST"),
		MailPort: getEnvIntOrDefault("MAIL_PORT", 587),
		MailUser: os.Getenv("SMTP_USER"),
		MailPass: os.Getenv("MAIL_PASS"),
		MailFrom: getEnvOrDefault("SMTP_FROM", os.Getenv("SMTP_USER")),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		CORSAllowedOrigins: getEnvListOrDefault("CORS_ALLOWED_ORIGINS", nil),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.IsProduction() && c.MailHost == "" {
		errs = append(errs, errors.New("MAIL_HOST is required in production"))
	}
	if c.MailHost != "" && c.MailFrom == "" {
		errs = append(errs, errors.New("SMTP_FROM or SMTP_USER is required to send mail"))
	}
	if c.TokenTTL <= 0 || c.OTPTTL <= 0 {
		errs = append(errs, errors.New("token and code lifetimes must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
