package dashapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantdash/pkg/auth"
	"tenantdash/pkg/gate"
	"tenantdash/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(), chimw.RealIP, middleware.Recover(a.log))
	r.Use(middleware.AccessLog(a.log))
	r.Use(middleware.Tracing(a.cfg, a.log))
	r.Use(cors(a.cfg.CORSOrigins))
	r.Use(middleware.Authenticate(a.cfg, a.verifier, a.log))

	r.Get("/healthz", a.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.json", apiDocs().ServeHandler("dashboard-api", apiVersion))

	r.Route("/v1/tenants", func(tr chi.Router) {
		tr.Use(middleware.RequirePrincipal())
		tr.Get("/", a.listTenants)

		tr.Route("/{key}", func(kr chi.Router) {
			kr.Use(middleware.WithTenant(a.conns))
			kr.Use(middleware.WithPermissions(a.perms))

			kr.With(middleware.RequireConnection(a.conns)).Get("/connection", a.getConnection)
			kr.Get("/permissions", a.getPermissions)
			kr.Post("/permissions/check", a.checkPermissions)

			kr.Group(func(vr chi.Router) {
				vr.Use(middleware.RequirePermission(gate.Need(auth.PermQualificationView)))
				vr.Get("/stages", a.getStages)
				vr.Get("/tags/resolve", a.resolveTag)
			})
			kr.With(middleware.RequirePermission(gate.Need(auth.PermSettingsView))).
				Post("/tags/reload", a.reloadTags)
			kr.With(middleware.RequirePermission(gate.Need(auth.PermQualificationManage))).
				Post("/webhooks/tags", a.normalizeWebhook)
		})
	})

	r.Route("/v1/session", func(sr chi.Router) {
		sr.Use(middleware.RequirePrincipal())
		sr.Post("/signout", a.signOut)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(middleware.RequirePrincipal())
		ar.Use(middleware.RequireMaster(a.masters))
		ar.Post("/tenants/{key}/invalidate", a.invalidateTenant)
	})

	return r
}
