package dashapi

import (
	"tenantdash/pkg/auth"
	"tenantdash/pkg/openapi"
)

const apiVersion = "v1"

func perms(ps ...auth.Permission) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// apiDocs describes the routes mounted by Handler.
func apiDocs() *openapi.Registry {
	tenant := []string{"tenants"}
	tags := []string{"tags"}
	denied := map[string]string{"401": "not signed in", "403": "missing permission", "404": "unknown workspace", "502": "tenant backend unavailable"}
	with := func(ok string, extra map[string]string) map[string]string {
		out := map[string]string{"200": ok}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	reg := openapi.NewRegistry()
	reg.Register(
		openapi.Operation{Method: "GET", Path: "/healthz", Summary: "Liveness probe", Public: true,
			Responses: map[string]string{"200": "ok"}},
		openapi.Operation{Method: "GET", Path: "/openapi.json", Summary: "This document", Public: true,
			Responses: map[string]string{"200": "OpenAPI document"}},
		openapi.Operation{Method: "GET", Path: "/v1/tenants", Summary: "List configured workspaces", Tags: tenant,
			Responses: map[string]string{"200": "workspace keys and display names", "401": "not signed in"}},
		openapi.Operation{Method: "GET", Path: "/v1/tenants/{key}/connection", Summary: "Resolve the workspace connection", Tags: tenant,
			Responses: with("connection summary", denied)},
		openapi.Operation{Method: "GET", Path: "/v1/tenants/{key}/permissions", Summary: "Effective permissions of the caller", Tags: tenant,
			Responses: with("effective permissions", denied)},
		openapi.Operation{Method: "POST", Path: "/v1/tenants/{key}/permissions/check", Summary: "Evaluate a render requirement", Tags: tenant,
			RequestBody: map[string]any{"type": "object", "properties": map[string]any{
				"permissions": map[string]any{"type": "array", "items": map[string]string{"type": "string"}},
				"require_all": map[string]string{"type": "boolean"},
			}},
			Responses: with("decision", map[string]string{"400": "unknown permission", "401": "not signed in"})},
		openapi.Operation{Method: "GET", Path: "/v1/tenants/{key}/stages", Summary: "Stages in display order", Tags: tags,
			Permissions: perms(auth.PermQualificationView), Responses: with("stages", denied)},
		openapi.Operation{Method: "GET", Path: "/v1/tenants/{key}/tags/resolve", Summary: "Map an external tag to a stage", Tags: tags,
			Permissions: perms(auth.PermQualificationView), Responses: with("stage and label", denied)},
		openapi.Operation{Method: "POST", Path: "/v1/tenants/{key}/tags/reload", Summary: "Drop the cached tag table", Tags: tags,
			Permissions: perms(auth.PermSettingsView), Responses: with("reloaded", denied)},
		openapi.Operation{Method: "POST", Path: "/v1/tenants/{key}/webhooks/tags", Summary: "Normalize a webhook payload tag", Tags: tags,
			Permissions: perms(auth.PermQualificationManage), Responses: with("normalized tag", denied)},
		openapi.Operation{Method: "POST", Path: "/v1/session/signout", Summary: "Sign out and drop cached tenant state", Tags: []string{"session"},
			Responses: map[string]string{"200": "signed out", "401": "not signed in"}},
		openapi.Operation{Method: "POST", Path: "/admin/tenants/{key}/invalidate", Summary: "Invalidate cached tenant state", Tags: []string{"admin"},
			MasterOnly: true, Responses: map[string]string{"202": "accepted", "401": "not signed in", "403": "not a master account"}},
	)
	return reg
}
