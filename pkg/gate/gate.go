// Package gate decides whether a permission-gated surface may render.
package gate

import (
	"encoding/json"

	"tenantdash/pkg/auth"
)

// Decision is tri-state so callers can show a loading affordance instead of
// flashing denied content.
type Decision int

const (
	Pending Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	}
	return "pending"
}

func (d Decision) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// Allowed is true only for Allow; Pending fails closed.
func (d Decision) Allowed() bool { return d == Allow }

// Requirement names the permissions a surface needs. With RequireAll unset
// any one of them suffices. An empty list is always satisfied.
type Requirement struct {
	Permissions []auth.Permission `json:"permissions"`
	RequireAll  bool              `json:"require_all"`
}

// Need is shorthand for a single-permission requirement.
func Need(p auth.Permission) Requirement {
	return Requirement{Permissions: []auth.Permission{p}}
}

func All(ps ...auth.Permission) Requirement { return Requirement{Permissions: ps, RequireAll: true} }
func Any(ps ...auth.Permission) Requirement { return Requirement{Permissions: ps} }

// State is what a consumer knows about the resolution: Loaded stays false
// until permissions for the active tenant have arrived.
type State struct {
	Loaded      bool
	Permissions auth.EffectivePermissions
}

func Loaded(eff auth.EffectivePermissions) State { return State{Loaded: true, Permissions: eff} }

// CanRender evaluates req against s. Master override allows before any
// comparison.
func CanRender(s State, req Requirement) Decision {
	if !s.Loaded {
		return Pending
	}
	if s.Permissions.MasterOverride {
		return Allow
	}
	var ok bool
	if req.RequireAll {
		ok = s.Permissions.HasAllPermissions(req.Permissions...)
	} else {
		ok = s.Permissions.HasAnyPermission(req.Permissions...)
	}
	if ok {
		return Allow
	}
	return Deny
}
