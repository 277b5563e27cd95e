// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantdash/pkg/problems"
	"tenantdash/pkg/registry"
)

type ctxTenantKey struct{}
type ctxConnKey struct{}

// TenantResolver is satisfied by *registry.Registry.
type TenantResolver interface {
	Known(ctx context.Context, key string) (string, error)
	Resolve(ctx context.Context, key string) (*registry.Connection, error)
}

// WithTenant checks that the {key} route parameter names an active workspace
// and puts the normalized key on the context. It does not dial the tenant
// backend, so master accounts still resolve while that backend is down. An
// unknown workspace is a 404.
func WithTenant(conns TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := conns.Known(r.Context(), chi.URLParam(r, "key"))
			if err != nil {
				problems.Write(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxTenantKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireConnection resolves the tenant connection for routes that talk to
// the backend directly. An unreachable backend is a 502.
func RequireConnection(conns TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := conns.Resolve(r.Context(), TenantKey(r.Context()))
			if err != nil {
				problems.Write(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxConnKey{}, conn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFrom returns the connection resolved by RequireConnection, or nil.
func TenantFrom(ctx context.Context) *registry.Connection {
	if v := ctx.Value(ctxConnKey{}); v != nil {
		return v.(*registry.Connection)
	}
	return nil
}

// TenantKey is the normalized key checked by WithTenant, or "".
func TenantKey(ctx context.Context) string {
	if k, ok := ctx.Value(ctxTenantKey{}).(string); ok {
		return k
	}
	return ""
}
