// pkg/middleware/scope.go
package middleware

import (
	"context"
	"net/http"

	"tenantdash/pkg/auth"
	"tenantdash/pkg/gate"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/problems"
)

// local context key type (unique to this file)
type permCtxKey struct{}

type resolvedPermissions struct {
	eff auth.EffectivePermissions
	err error
}

// PermissionResolver is satisfied by *auth.Resolver.
type PermissionResolver interface {
	ResolveCurrent(ctx context.Context, tenantKey string) (auth.EffectivePermissions, *identity.Principal, error)
}

// WithPermissions resolves the principal's effective permissions in the
// tenant placed on the context by WithTenant. A resolution error is kept
// alongside an empty set so gates fail closed.
func WithPermissions(res PermissionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			eff, _, err := res.ResolveCurrent(r.Context(), TenantKey(r.Context()))
			if err != nil {
				eff = auth.EffectivePermissions{}
			}
			ctx := context.WithValue(r.Context(), permCtxKey{}, resolvedPermissions{eff: eff, err: err})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PermissionsFrom returns the permissions resolved for this request. ok is
// false when WithPermissions did not run.
func PermissionsFrom(ctx context.Context) (auth.EffectivePermissions, bool, error) {
	v, ok := ctx.Value(permCtxKey{}).(resolvedPermissions)
	if !ok {
		return auth.EffectivePermissions{}, false, nil
	}
	return v.eff, true, v.err
}

// RequirePermission gates a route. Resolution failures render as their own
// problem; a plain lack of permission is a 403.
func RequirePermission(req gate.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			eff, ok, err := PermissionsFrom(r.Context())
			if err != nil {
				problems.Write(w, err)
				return
			}
			if gate.CanRender(gate.State{Loaded: ok, Permissions: eff}, req) != gate.Allow {
				problems.Write(w, problems.Forbidden("gate", TenantKey(r.Context())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasAnyPermission returns true if the request holds at least one of the
// required permissions.
func HasAnyPermission(ctx context.Context, required ...auth.Permission) bool {
	eff, ok, err := PermissionsFrom(ctx)
	if !ok || err != nil {
		return false
	}
	return eff.HasAnyPermission(required...)
}

// RequireMaster admits only allow-listed master principals.
func RequireMaster(masters interface{ Contains(email string) bool }) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.PrincipalFrom(r.Context())
			if !ok || !masters.Contains(p.Email) {
				problems.Write(w, problems.Forbidden("admin", ""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
