package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/federation"
	httpapi "github.com/aussiebroadwan/tenantauth/internal/auth/http"
	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/notify"
	"github.com/aussiebroadwan/tenantauth/internal/auth/revoke"
	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/tenantauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/jwtx"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	redis       *redis.Client // nil unless REDIS_ADDR is set
	revocations revoke.List
	notifier    notify.Notifier
	federation  federation.Verifier
	hasher      *cryptox.Hasher
	signer      *jwtx.HS256Signer
	verifier    *jwtx.HS256Verifier
	metrics     *metrics.Metrics

	// Services
	authService         *service.AuthService
	adminService        *service.AdminService
	organizationService *service.OrganizationService
	mfaService          *service.MFAService
	authorizer          *service.Authorizer
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	signer, verifier, err := InitSigningKeys(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.signer, app.verifier = signer, verifier

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initRevocations(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.initNotifier()
	app.initFederation()

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the database and redis connections without touching the
// HTTP server. Used directly by one-shot commands and tests.
func (app *Application) Close() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler returns the fully wired HTTP handler, for serving in tests.
func (app *Application) Handler() http.Handler {
	return app.router
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.StoreDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	default:
		host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(host)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

// initRevocations keeps logged-out tokens in redis when configured, else in
// the database. Redis must answer at startup.
func (app *Application) initRevocations(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.revocations = revoke.NewStoreList(app.db)
		app.logger.Info("revocation list stored in database")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.redis = client
	app.revocations = revoke.NewRedisList(client)
	app.logger.Info("revocation list stored in redis", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initNotifier() {
	if app.cfg.MailHost == "" {
		// Validate refuses this in production.
		app.notifier = &notify.LogNotifier{Logger: app.logger}
		app.logger.Warn("MAIL_HOST not set, one-time codes are logged instead of emailed")
		return
	}

	app.notifier = notify.NewSMTPNotifier(
		app.cfg.MailHost,
		app.cfg.MailPort,
		app.cfg.MailUser,
		app.cfg.MailPass,
		app.cfg.MailFrom,
	)
	app.logger.Info("smtp notifier configured", "host", app.cfg.MailHost, "port", app.cfg.MailPort)
}

func (app *Application) initFederation() {
	if app.cfg.GoogleClientID == "" {
		app.federation = federation.Disabled{}
		return
	}
	app.federation = federation.NewGoogleVerifier(app.cfg.GoogleClientID)
	app.logger.Info("google federated login enabled")
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.hasher = cryptox.NewHasher(app.cfg.BcryptCost, app.cfg.HashWorkers)

	app.authService = &service.AuthService{
		Store:  app.db,
		Hasher: app.hasher,
		Sessions: &service.SessionIssuer{
			Signer: app.signer,
			Issuer: app.cfg.Issuer,
			TTL:    app.cfg.TokenTTL,
		},
		Codes: &service.OTPIssuer{
			Store:    app.db,
			Notifier: app.notifier,
			TTL:      app.cfg.OTPTTL,
			Metrics:  app.metrics,
		},
		Federation:  app.federation,
		Revocations: app.revocations,
		Metrics:     app.metrics,
	}
	app.adminService = &service.AdminService{Store: app.db, Hasher: app.hasher}
	app.organizationService = &service.OrganizationService{Store: app.db, Hasher: app.hasher}
	app.mfaService = &service.MFAService{Store: app.db, Issuer: app.cfg.Issuer}
	app.authorizer = &service.Authorizer{Verifier: app.verifier, Revocations: app.revocations}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Metrics = app.metrics
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	// Only a redis-backed revocation list is a separate dependency to probe.
	var revocations httpapi.Pinger
	if rl, ok := app.revocations.(*revoke.RedisList); ok {
		revocations = rl
	}

	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		revocations,
		app.metrics,
		app.cfg.CORSAllowedOrigins,
		app.logger,
	)

	// Wire services to router
	router.AuthService = app.authService
	router.AdminService = app.adminService
	router.OrganizationService = app.organizationService
	router.MFAService = app.mfaService
	router.Authorizer = app.authorizer
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
