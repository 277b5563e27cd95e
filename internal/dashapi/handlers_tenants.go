package dashapi

import (
	"encoding/json"
	"net/http"
	"time"

	"tenantdash/pkg/auth"
	"tenantdash/pkg/gate"
	"tenantdash/pkg/middleware"
	"tenantdash/pkg/problems"
)

// listTenants never exposes base URLs or key material.
func (a *App) listTenants(w http.ResponseWriter, r *http.Request) {
	ds, err := a.conns.Descriptors(r.Context())
	if err != nil {
		problems.Write(w, err)
		return
	}
	type item struct {
		TenantKey   string `json:"tenant_key"`
		DisplayName string `json:"display_name"`
	}
	out := make([]item, 0, len(ds))
	for _, d := range ds {
		out = append(out, item{TenantKey: d.TenantKey, DisplayName: d.DisplayName})
	}
	writeJSON(w, map[string]any{"tenants": out}, http.StatusOK)
}

func (a *App) getConnection(w http.ResponseWriter, r *http.Request) {
	c := middleware.TenantFrom(r.Context())
	writeJSON(w, map[string]any{
		"tenant_key":    c.TenantKey,
		"connection_id": c.ID,
		"created_at":    c.CreatedAt.UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

type membershipView struct {
	Role        auth.Role         `json:"role,omitempty"`
	Permissions []auth.Permission `json:"permissions"`
}

type permissionsView struct {
	TenantKey      string            `json:"tenant_key"`
	Role           auth.Role         `json:"role"`
	Permissions    []auth.Permission `json:"permissions"`
	MasterOverride bool              `json:"master_override"`
	Membership     *membershipView   `json:"membership,omitempty"`
}

func (a *App) getPermissions(w http.ResponseWriter, r *http.Request) {
	eff, _, err := middleware.PermissionsFrom(r.Context())
	if err != nil {
		problems.Write(w, err)
		return
	}
	v := permissionsView{
		TenantKey:      middleware.TenantKey(r.Context()),
		Role:           eff.Role,
		Permissions:    eff.Permissions.Sorted(),
		MasterOverride: eff.MasterOverride,
	}
	if m := eff.Membership; m != nil {
		v.Membership = &membershipView{Role: m.Role, Permissions: m.Permissions.Sorted()}
	}
	writeJSON(w, v, http.StatusOK)
}

// checkPermissions evaluates an arbitrary requirement for UI gates.
func (a *App) checkPermissions(w http.ResponseWriter, r *http.Request) {
	var b struct {
		Permissions []string `json:"permissions"`
		RequireAll  bool     `json:"require_all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		problems.Write(w, problems.Invalid("check", "bad json"))
		return
	}
	req := gate.Requirement{RequireAll: b.RequireAll}
	for _, s := range b.Permissions {
		p, ok := auth.ParsePermission(s)
		if !ok {
			problems.Write(w, problems.Invalid("check", "unknown permission "+s))
			return
		}
		req.Permissions = append(req.Permissions, p)
	}
	eff, loaded, err := middleware.PermissionsFrom(r.Context())
	if err != nil {
		problems.Write(w, err)
		return
	}
	d := gate.CanRender(gate.State{Loaded: loaded, Permissions: eff}, req)
	writeJSON(w, map[string]any{"decision": d, "master_override": eff.MasterOverride}, http.StatusOK)
}
