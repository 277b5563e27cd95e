package dashapi

import (
	"io"
	"net/http"
	"strings"

	"tenantdash/pkg/invalidation"
	"tenantdash/pkg/middleware"
	"tenantdash/pkg/problems"
	"tenantdash/pkg/tags"
)

const maxWebhookBody = 1 << 20

type tagView struct {
	Tag   string     `json:"tag"`
	Stage tags.Stage `json:"stage"`
	Label string     `json:"label"`
}

func (a *App) getStages(w http.ResponseWriter, r *http.Request) {
	key := middleware.TenantKey(r.Context())
	t, err := a.tags.Table(r.Context(), key)
	if err != nil {
		problems.Write(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"tenant_key": key,
		"stages":     t.StagesByOrder(),
		"mappings":   t.Mappings(),
	}, http.StatusOK)
}

// resolveTag degrades to the new-lead stage and the raw tag when the table
// cannot be loaded.
func (a *App) resolveTag(w http.ResponseWriter, r *http.Request) {
	key := middleware.TenantKey(r.Context())
	tag := r.URL.Query().Get("tag")
	writeJSON(w, tagView{
		Tag:   tag,
		Stage: a.tags.StageOf(r.Context(), key, tag),
		Label: a.tags.LabelOf(r.Context(), key, tag),
	}, http.StatusOK)
}

func (a *App) reloadTags(w http.ResponseWriter, r *http.Request) {
	key := middleware.TenantKey(r.Context())
	t, err := a.tags.Reload(r.Context(), key)
	if err != nil {
		problems.Write(w, err)
		return
	}
	published := a.publish(r.Context(), invalidation.Mappings(key))
	writeJSON(w, map[string]any{
		"tenant_key": key,
		"mappings":   len(t.Mappings()),
		"published":  published,
	}, http.StatusOK)
}

// normalizeWebhook extracts the raw tag from an integration payload and maps
// it like any other tag.
func (a *App) normalizeWebhook(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		path = a.cfg.WebhookTagPath
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		problems.Write(w, problems.Invalid("webhook", "unreadable body"))
		return
	}
	tag, err := tags.ExtractTagJSON(body, path)
	if err != nil {
		problems.Write(w, err)
		return
	}
	key := middleware.TenantKey(r.Context())
	writeJSON(w, tagView{
		Tag:   tag,
		Stage: a.tags.StageOf(r.Context(), key, tag),
		Label: a.tags.LabelOf(r.Context(), key, tag),
	}, http.StatusOK)
}
