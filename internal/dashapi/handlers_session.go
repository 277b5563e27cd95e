package dashapi

import (
	"net/http"

	"tenantdash/pkg/identity"
	"tenantdash/pkg/invalidation"
)

// signOut emits the sign-out event, which drops every cached connection,
// mapping table and permission set, and fans it out to other replicas.
func (a *App) signOut(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.PrincipalFrom(r.Context())
	a.events.Emit(identity.SignedOut, &p)
	a.log.Infow("principal signed out", "principal", p.ID)
	published := a.publish(r.Context(), invalidation.All())
	writeJSON(w, map[string]any{"signed_out": true, "published": published}, http.StatusOK)
}
