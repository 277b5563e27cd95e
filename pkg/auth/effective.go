package auth

// Membership is a parsed membership row.
type Membership struct {
	TenantID    string
	PrincipalID string
	Role        Role
	Permissions Set
}

// EffectivePermissions is derived per (principal, tenant) and never stored.
// The zero value grants nothing.
type EffectivePermissions struct {
	Role           Role
	Permissions    Set
	MasterOverride bool
	// Membership is informational; nil when no row exists or it was not loaded.
	Membership *Membership
}

// HasPermission is a pure lookup.
func (e EffectivePermissions) HasPermission(p Permission) bool {
	if e.MasterOverride {
		return true
	}
	return e.Permissions.Has(p)
}

// HasAnyPermission is true for an empty list.
func (e EffectivePermissions) HasAnyPermission(ps ...Permission) bool {
	if len(ps) == 0 || e.MasterOverride {
		return true
	}
	for _, p := range ps {
		if e.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is true for an empty list.
func (e EffectivePermissions) HasAllPermissions(ps ...Permission) bool {
	if e.MasterOverride {
		return true
	}
	for _, p := range ps {
		if !e.Permissions.Has(p) {
			return false
		}
	}
	return true
}

func masterPermissions() EffectivePermissions {
	return EffectivePermissions{Role: RoleOwner, Permissions: NewSet(allPermissions...), MasterOverride: true}
}

// fromMembership computes role defaults ∪ explicit grants. An unknown role
// contributes no defaults; grants outside the catalog are dropped.
func fromMembership(m *Membership) EffectivePermissions {
	if m == nil {
		return EffectivePermissions{Permissions: Set{}}
	}
	return EffectivePermissions{
		Role:        m.Role,
		Permissions: RoleDefaults(m.Role).Union(m.Permissions),
		Membership:  m,
	}
}
