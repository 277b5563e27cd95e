package dashapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantdash/pkg/invalidation"
	"tenantdash/pkg/problems"
	"tenantdash/pkg/tenants"
)

// invalidateTenant follows an administrative descriptor change: the cached
// connection and mapping table are dropped here and on every replica.
func (a *App) invalidateTenant(w http.ResponseWriter, r *http.Request) {
	key := tenants.NormalizeKey(chi.URLParam(r, "key"))
	if key == "" {
		problems.Write(w, problems.Invalid("invalidate", "tenant key is required"))
		return
	}
	m := invalidation.Descriptor(key)
	invalidation.Apply(m, a.conns, a.tags)
	published := a.publish(r.Context(), m)
	a.log.Infow("tenant invalidated", "tenant", key, "published", published)
	writeJSON(w, map[string]any{"tenant_key": key, "invalidated": true, "published": published}, http.StatusAccepted)
}
