package dashapi

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tenantdash/pkg/auth"
	"tenantdash/pkg/config"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/invalidation"
	"tenantdash/pkg/logger"
	"tenantdash/pkg/middleware"
	"tenantdash/pkg/registry"
	"tenantdash/pkg/tags"
)

// App is the dashboard-api application container. Handlers and middleware
// have methods on this type; request-scoped work uses the context.
type App struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	conns     *registry.Registry
	perms     *auth.Resolver
	tags      *tags.Resolver
	masters   auth.MasterList
	verifier  middleware.TokenVerifier
	publisher *invalidation.Publisher
	events    *identity.Events
	gatherer  prometheus.Gatherer
}

// Deps are the components built in main. Publisher, Events and Gatherer are
// optional.
type Deps struct {
	Log       *zap.SugaredLogger
	Registry  *registry.Registry
	Perms     *auth.Resolver
	Tags      *tags.Resolver
	Masters   auth.MasterList
	Verifier  middleware.TokenVerifier
	Publisher *invalidation.Publisher
	Events    *identity.Events
	Gatherer  prometheus.Gatherer
}

func New(cfg config.Config, d Deps) *App {
	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	ev := d.Events
	if ev == nil {
		ev = &identity.Events{}
	}
	return &App{
		cfg:       cfg,
		log:       logger.OrNop(d.Log),
		conns:     d.Registry,
		perms:     d.Perms,
		tags:      d.Tags,
		masters:   d.Masters,
		verifier:  d.Verifier,
		publisher: d.Publisher,
		events:    ev,
		gatherer:  g,
	}
}

// publish fans an invalidation out to other replicas. Local caches have
// already been updated by the caller.
func (a *App) publish(ctx context.Context, m invalidation.Message) bool {
	if a.publisher == nil {
		return false
	}
	n, err := a.publisher.Publish(ctx, m)
	if err != nil {
		a.log.Warnw("invalidation publish failed", "msg", m.String(), "err", err)
		return false
	}
	a.log.Infow("invalidation published", "msg", m.String(), "receivers", n)
	return true
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}
