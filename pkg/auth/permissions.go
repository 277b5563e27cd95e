// Package auth resolves a principal's effective capabilities inside a tenant.
package auth

import (
	"sort"
	"strings"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// ParseRole is case-insensitive. Unknown strings yield "", false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return r, true
	}
	return "", false
}

type Permission string

const (
	PermDashboardView        Permission = "dashboard.view"
	PermTrafficView          Permission = "traffic.view"
	PermQualificationView    Permission = "qualification.view"
	PermAnalysisView         Permission = "analysis.view"
	PermReportsView          Permission = "reports.view"
	PermQualificationManage  Permission = "qualification.manage"
	PermExportPDF            Permission = "export.pdf"
	PermExportExcel          Permission = "export.excel"
	PermReportsExport        Permission = "reports.export"
	PermSettingsView         Permission = "settings.view"
	PermSettingsUsers        Permission = "settings.users"
	PermSettingsEdit         Permission = "settings.edit"
	PermSettingsIntegrations Permission = "settings.integrations"
)

var allPermissions = []Permission{
	PermDashboardView, PermTrafficView, PermQualificationView, PermAnalysisView, PermReportsView,
	PermQualificationManage,
	PermExportPDF, PermExportExcel, PermReportsExport, PermSettingsView, PermSettingsUsers,
	PermSettingsEdit, PermSettingsIntegrations,
}

var known = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(allPermissions))
	for _, p := range allPermissions {
		m[p] = struct{}{}
	}
	return m
}()

// AllPermissions returns every permission key.
func AllPermissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// ParsePermission accepts only keys from the catalog.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.TrimSpace(s))
	_, ok := known[p]
	return p, ok
}

// Owner ⊇ Admin ⊇ Member ⊇ Viewer, each strictly.
var (
	viewerDefaults = []Permission{PermDashboardView, PermTrafficView, PermQualificationView, PermAnalysisView, PermReportsView}
	memberDefaults = append(append([]Permission(nil), viewerDefaults...), PermQualificationManage)
	adminDefaults  = append(append([]Permission(nil), memberDefaults...),
		PermExportPDF, PermExportExcel, PermSettingsView, PermSettingsUsers, PermReportsExport)
)

// RoleDefaults returns the default permission set of r; empty for "".
func RoleDefaults(r Role) Set {
	switch r {
	case RoleOwner:
		return NewSet(allPermissions...)
	case RoleAdmin:
		return NewSet(adminDefaults...)
	case RoleMember:
		return NewSet(memberDefaults...)
	case RoleViewer:
		return NewSet(viewerDefaults...)
	}
	return Set{}
}

// Set is an immutable-by-convention permission set.
type Set map[Permission]struct{}

func NewSet(ps ...Permission) Set {
	s := make(Set, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union returns a new set; neither input is modified.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range o {
		out[p] = struct{}{}
	}
	return out
}

// Sorted lists the keys alphabetically.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
