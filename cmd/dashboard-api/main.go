// cmd/dashboard-api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tenantdash/internal/dashapi"
	"tenantdash/pkg/auth"
	"tenantdash/pkg/backend"
	"tenantdash/pkg/config"
	"tenantdash/pkg/db"
	"tenantdash/pkg/identity"
	"tenantdash/pkg/invalidation"
	"tenantdash/pkg/logger"
	"tenantdash/pkg/metrics"
	"tenantdash/pkg/middleware"
	"tenantdash/pkg/registry"
	"tenantdash/pkg/session"
	"tenantdash/pkg/tags"
	"tenantdash/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer log.Sync()

	var pool = db.MustConnect(cfg, log)

	var store tenants.Store
	if pool != nil {
		store = tenants.NewPostgresStore(pool, log)
		if err := tenants.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		if err := tenants.SeedFromEnv(context.Background(), pool, cfg.TenantSeedJSON); err != nil {
			log.Warnw("seed", "err", err)
		}
	} else {
		mem, err := tenants.NewMemoryStoreFromEnv(log)
		if err != nil {
			log.Fatalw("descriptor seed", "err", err)
		}
		store = mem
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	reg := registry.New(store, backend.SchemeDialer{Timeout: cfg.BackendTimeout, Log: log}, registry.Options{
		Log: log, Metrics: m, TTL: cfg.ConnectionTTL,
	})
	masters := auth.NewMasterList(cfg.MasterEmails, cfg.MasterEmailsFoldCase)
	if masters.Len() == 0 {
		log.Warnw("MASTER_EMAILS empty; no master override accounts")
	}
	perms := auth.NewResolver(reg, masters, identity.ContextProvider{}, auth.Options{Log: log, Metrics: m})
	tagRes := tags.NewResolver(reg, tags.Options{Log: log, Metrics: m})

	// Process-wide session: a sign-out event clears the shared caches.
	events := &identity.Events{}
	session.New(reg, perms, tagRes, session.Options{Log: log, Metrics: m}).Subscribe(events)

	verifier := identity.NewVerifier(cfg)
	if !verifier.Configured() {
		log.Warnw("identity provider not configured; bearer tokens will be rejected", "env", cfg.Env)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher *invalidation.Publisher
	var listener *invalidation.Listener
	if rdb := db.MustRedis(cfg, log); rdb != nil {
		defer rdb.Close()
		publisher = invalidation.NewPublisher(rdb, cfg.InvalidationChannel)
		listener = invalidation.NewListener(rdb, cfg.InvalidationChannel, reg, tagRes, log)
		if err := listener.Start(ctx); err != nil {
			log.Fatalw("invalidation listener", "err", err)
		}
	}

	app := dashapi.New(cfg, dashapi.Deps{
		Log:       log,
		Registry:  reg,
		Perms:     perms,
		Tags:      tagRes,
		Masters:   masters,
		Verifier:  verifier,
		Publisher: publisher,
		Events:    events,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("dashboard-api listening", "addr", cfg.HTTPAddr, "masters", masters.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	if listener != nil {
		_ = listener.Close()
	}
	reg.Clear()
	_ = middleware.ShutdownTracing(shutdownCtx)
	if pool != nil {
		pool.Close()
	}
	fmt.Println("dashboard-api stopped")
}
