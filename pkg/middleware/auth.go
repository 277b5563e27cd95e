// pkg/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tenantdash/pkg/config"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/problems"
)

// TokenVerifier is satisfied by *identity.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (identity.Principal, error)
}

// Dev-only headers that stand in for a token during local bring-up. They need
// both APP_ENV=dev and DEV_PRINCIPAL_HEADERS=true.
const (
	HeaderDevPrincipalID    = "X-Dev-Principal-Id"
	HeaderDevPrincipalEmail = "X-Dev-Principal-Email"
)

// Authenticate validates the bearer token and places the principal on the
// request context. Requests without a principal continue as signed out; the
// resolvers then grant nothing.
func Authenticate(cfg config.Config, v TokenVerifier, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Bypass auth for health and metrics endpoints
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if strings.TrimSpace(authz) == "" {
				// In dev, allow a header-supplied principal (facilitates local bring-up)
				if cfg.Env == "dev" && cfg.DevPrincipalHeaders {
					if id := r.Header.Get(HeaderDevPrincipalID); id != "" {
						p := identity.Principal{ID: id, Email: r.Header.Get(HeaderDevPrincipalEmail)}
						next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
						return
					}
				}
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := identity.BearerToken(authz)
			if !ok {
				problems.Write(w, problems.Unauthenticated("authenticate", errors.New("missing bearer")))
				return
			}
			p, err := v.Verify(r.Context(), raw)
			if err != nil {
				if problems.KindOf(err) == problems.KindAuthUnavailable {
					log.Warnw("identity provider unavailable", "err", err, "request_id", RequestIDFrom(r.Context()))
					problems.Write(w, err)
					return
				}
				problems.Write(w, problems.Unauthenticated("authenticate", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequirePrincipal rejects signed out requests with 401.
func RequirePrincipal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := identity.PrincipalFrom(r.Context()); !ok {
				problems.Write(w, problems.Unauthenticated("authenticate", errors.New("sign in required")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorSub returns the principal id, or "" when signed out.
func ActorSub(ctx context.Context) string {
	if p, ok := identity.PrincipalFrom(ctx); ok {
		return p.ID
	}
	return ""
}
