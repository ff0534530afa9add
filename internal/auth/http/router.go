package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"

	_ "github.com/aussiebroadwan/tenantauth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	db          Pinger
	revocations Pinger // nil unless the revocation list lives outside the database
	metrics     *metrics.Metrics

	AuthService         *service.AuthService
	AdminService        *service.AdminService
	OrganizationService *service.OrganizationService
	MFAService          *service.MFAService
	Authorizer          *service.Authorizer
}

func NewRouter(
	buildVersion string,
	db Pinger,
	revocations Pinger,
	m *metrics.Metrics,
	corsOrigins []string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		db:           db,
		revocations:  revocations,
		metrics:      m,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(corsOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerUsers()
	r.registerMFA()
	r.registerAdmin()
	r.registerOrganizations()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			TenantAuth Authentication Service API
//	@version		0.1.0
//	@description	Multi-tenant authentication: organizations, users, password login with emailed one-time codes,
//	@description	password reset and administrator user management.
//	@description
//	@description				Session tokens are HS256 JWTs valid for 12 hours.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tenantauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern with request metrics labelled by the
// pattern.
func (r *Router) handle(pattern string, h http.Handler) {
	r.Mux.Handle(pattern, r.metrics.Instrument(pattern, h))
}

// authenticated verifies the bearer token and admits the listed roles, or
// any role when none are given. The principal is stored on the context.
func (r *Router) authenticated(roles ...domain.Role) httpx.Middleware {
	authenticate := func(ctx context.Context, token string) (context.Context, error) {
		p, err := r.Authorizer.RequireRole(ctx, token, roles...)
		if err != nil {
			return nil, err
		}
		ctx = withPrincipal(ctx, p)
		ctx = httpx.WithUserID(ctx, p.UserID)
		return slogx.WithAttrs(ctx, "user_id", p.UserID, "org_id", p.OrganizationID), nil
	}
	return httpx.AuthnMiddleware(authenticate, writeError)
}

func (r *Router) registerUsers() {
	h := &UserHandler{AuthService: r.AuthService}

	// Credential endpoints - strict rate limit by IP + email to slow brute force
	strict := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"))
	}

	r.handle("POST /user/login", strict(h.HandleLogin))
	r.handle("POST /user/forgot-password", strict(h.HandleForgotPassword))
	r.handle("POST /user/verify-otp", strict(h.HandleVerifyResetCode))
	r.handle("POST /user/reset-password", strict(h.HandleResetPassword))
	r.handle("POST /user/federated-login", httpx.Chain(http.HandlerFunc(h.HandleFederatedLogin),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))

	// Self service - lenient rate limit by user
	self := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			r.authenticated(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		)
	}

	r.handle("PUT /user/update", self(h.HandleUpdate))
	r.handle("POST /user/logout", self(h.HandleLogout))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		AuthService: r.AuthService,
		MFAService:  r.MFAService,
	}

	// POST /mfa/verify - strict rate limit by IP (code guessing)
	r.handle("POST /mfa/verify", httpx.Chain(http.HandlerFunc(h.HandleVerify),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))

	r.handle("POST /mfa/toggle", httpx.Chain(http.HandlerFunc(h.HandleToggle),
		r.authenticated(),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	))
	r.handle("POST /mfa/totp/enroll", httpx.Chain(http.HandlerFunc(h.HandleEnrollTOTP),
		r.authenticated(),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	))

	// Confirm checks a code, so it gets the strict limit
	r.handle("POST /mfa/totp/confirm", httpx.Chain(http.HandlerFunc(h.HandleConfirmTOTP),
		r.authenticated(),
		httpx.RateLimitByUser(httpx.StrictLimit),
	))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{
		AuthService:         r.AuthService,
		AdminService:        r.AdminService,
		OrganizationService: r.OrganizationService,
	}

	r.handle("POST /admin/login", httpx.Chain(http.HandlerFunc(h.HandleLogin),
		httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
	))

	// Admin operations - moderate rate limit by user
	admin := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			r.authenticated(domain.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.handle("POST /admin/create-users", admin(h.HandleCreateUser))
	r.handle("GET /admin/get-users", admin(h.HandleListUsers))
	r.handle("DELETE /admin/delete-users/{id}", admin(h.HandleDeleteUser))
	r.handle("POST /admin/toggle-mfa", admin(h.HandleToggleMFA))
	r.handle("PUT /admin/update-role", admin(h.HandleUpdateRole))
	r.handle("PUT /admin/update-access", admin(h.HandleUpdateAccess))
}

func (r *Router) registerOrganizations() {
	h := &OrganizationHandler{OrganizationService: r.OrganizationService}

	// POST /organization/create - strict rate limit by IP (public signup endpoint)
	r.handle("POST /organization/create", httpx.Chain(http.HandlerFunc(h.HandleCreate),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))

	admin := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			r.authenticated(domain.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.handle("POST /organization/domain/add", admin(h.HandleAddDomain))
	r.handle("POST /organization/domain/remove", admin(h.HandleRemoveDomain))
	r.handle("DELETE /organization/domain/remove", admin(h.HandleRemoveDomain))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.handle("GET /livez", httpx.Chain(LivenessHandler(r.startTime, r.buildVersion),
		httpx.RateLimitByIP(httpx.LenientLimit),
	))
	r.handle("GET /readyz", httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.db, r.revocations),
		httpx.RateLimitByIP(httpx.LenientLimit),
	))

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", httpx.Chain(r.metrics.Handler(),
			httpx.RateLimitByIP(httpx.PublicLimit),
		))
	}

	r.Mux.Handle("/swagger/", httpx.Chain(httpSwagger.Handler(),
		httpx.RateLimitByIP(httpx.PublicLimit),
	))
}
