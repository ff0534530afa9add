package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// Authenticator resolves a bearer token (possibly empty) and returns the
// context to continue with.
type Authenticator func(ctx context.Context, token string) (context.Context, error)

// ErrorWriter renders a failed request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// AuthnMiddleware hands the bearer token to authenticate and stops the
// request with fail when it returns an error.
func AuthnMiddleware(authenticate Authenticator, fail ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authenticate(r.Context(), BearerToken(r))
			if err != nil {
				slogx.FromContext(r.Context()).Debug("request not authenticated", "err", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
