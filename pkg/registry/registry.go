// Package registry maps a tenant key to a ready backend connection. It owns
// the connection cache and coalesces concurrent constructions per key.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tenantdash/pkg/backend"
	"tenantdash/pkg/logger"
	"tenantdash/pkg/metrics"
	"tenantdash/pkg/problems"
	"tenantdash/pkg/tenants"
)

// Connection is an authenticated handle to one tenant backend. Only the
// Registry constructs it.
type Connection struct {
	ID        string
	TenantKey string
	Client    backend.Client
	CreatedAt time.Time
}

var errInvalidatedDuringBuild = errors.New("descriptor invalidated while connecting")

// maxBuildAttempts bounds rebuilds when Invalidate races a construction.
// Retries happen inside the same flight, so a key never has two dials
// running at once.
const maxBuildAttempts = 2

type Options struct {
	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics
	// TTL expires cached connections; zero keeps them for the process lifetime.
	TTL time.Duration
	Now func() time.Time
}

type Registry struct {
	store   tenants.Store
	dialer  backend.Dialer
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	conns map[string]*Connection
	// gen is bumped per key by Invalidate and globally by Clear; a build only
	// commits if neither moved while it ran.
	gen   map[string]uint64
	epoch uint64

	flights singleflight.Group
}

func New(store tenants.Store, dialer backend.Dialer, opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:   store,
		dialer:  dialer,
		log:     logger.OrNop(opts.Log),
		metrics: opts.Metrics,
		ttl:     opts.TTL,
		now:     now,
		conns:   map[string]*Connection{},
		gen:     map[string]uint64{},
	}
}

// Resolve returns the cached connection for key or builds one. Concurrent
// callers for the same unresolved key share one construction. Failures are
// never cached.
func (r *Registry) Resolve(ctx context.Context, key string) (*Connection, error) {
	k := tenants.NormalizeKey(key)
	if k == "" {
		return nil, problems.Invalid("resolve", "tenant key is required")
	}
	if c := r.cached(k); c != nil {
		r.metrics.CacheHit(k)
		return c, nil
	}
	// The shared build must not die with whichever caller started it.
	buildCtx := context.WithoutCancel(ctx)
	ch := r.flights.DoChan(k, func() (any, error) {
		return r.build(buildCtx, k)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.metrics.Shared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Connection), nil
	case <-ctx.Done():
		return nil, problems.ConnectionFailed("resolve", k, ctx.Err())
	}
}

// Known returns the normalized key when it names an active workspace. It
// never dials: a cached connection or a descriptor read is enough.
func (r *Registry) Known(ctx context.Context, key string) (string, error) {
	k := tenants.NormalizeKey(key)
	if k == "" {
		return "", problems.Invalid("lookup", "tenant key is required")
	}
	if r.cached(k) != nil {
		return k, nil
	}
	if _, err := r.store.ActiveDescriptor(ctx, k); err != nil {
		if errors.Is(err, tenants.ErrDescriptorNotFound) {
			return "", problems.NotFound("lookup", k)
		}
		return "", problems.ConnectionFailed("lookup", k, err)
	}
	return k, nil
}

func (r *Registry) cached(k string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[k]
	if !ok {
		return nil
	}
	if r.ttl > 0 && r.now().Sub(c.CreatedAt) >= r.ttl {
		delete(r.conns, k)
		r.gen[k]++
		r.metrics.Invalidated("expired")
		go c.Client.Close()
		return nil
	}
	return c
}

func (r *Registry) snapshot(k string) (uint64, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch, r.gen[k]
}

func (r *Registry) build(ctx context.Context, k string) (*Connection, error) {
	// Another flight may have committed between our cache miss and this call.
	if c := r.cached(k); c != nil {
		return c, nil
	}
	for attempt := 0; attempt < maxBuildAttempts; attempt++ {
		epoch, gen := r.snapshot(k)

		d, err := r.store.ActiveDescriptor(ctx, k)
		if err != nil {
			if errors.Is(err, tenants.ErrDescriptorNotFound) {
				r.metrics.Construction(k, "not_found")
				return nil, problems.NotFound("resolve", k)
			}
			r.metrics.Construction(k, "descriptor_error")
			r.log.Warnw("descriptor fetch failed", "tenant", k, "err", err)
			return nil, problems.ConnectionFailed("resolve", k, err)
		}

		r.log.Debugw("constructing tenant connection", "tenant", k, "attempt", attempt+1)
		client, err := r.dialer.Dial(ctx, d)
		if err != nil {
			r.metrics.Construction(k, "failed")
			r.log.Warnw("tenant connection failed", "tenant", k, "err", err)
			return nil, problems.ConnectionFailed("resolve", k, err)
		}
		conn := &Connection{ID: uuid.NewString(), TenantKey: k, Client: client, CreatedAt: r.now()}

		r.mu.Lock()
		if r.epoch == epoch && r.gen[k] == gen {
			if existing, ok := r.conns[k]; ok {
				// a newer flight committed first
				r.mu.Unlock()
				client.Close()
				return existing, nil
			}
			r.conns[k] = conn
			r.mu.Unlock()
			r.metrics.Construction(k, "ok")
			r.log.Infow("tenant connection ready", "tenant", k, "connection", conn.ID)
			return conn, nil
		}
		r.mu.Unlock()
		client.Close()
		r.metrics.Construction(k, "superseded")
	}
	return nil, problems.ConnectionFailed("resolve", k, errInvalidatedDuringBuild)
}

// Invalidate drops the cached connection for key so the next Resolve rebuilds
// it. An in-flight construction for key stays registered: its result is
// discarded and it rebuilds once against the current descriptor, and callers
// arriving meanwhile join it.
func (r *Registry) Invalidate(key string) {
	r.invalidate(tenants.NormalizeKey(key), "manual")
}

func (r *Registry) invalidate(k, reason string) {
	r.mu.Lock()
	c, ok := r.conns[k]
	delete(r.conns, k)
	r.gen[k]++
	r.mu.Unlock()
	if ok {
		r.metrics.Invalidated(reason)
		r.log.Infow("tenant connection invalidated", "tenant", k, "reason", reason)
		// Pool close blocks until borrowed connections return.
		go c.Client.Close()
	}
}

// ReportAuthFailure invalidates key when err is a backend credential
// rejection. It reports whether the connection was dropped.
func (r *Registry) ReportAuthFailure(key string, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	r.invalidate(tenants.NormalizeKey(key), "auth_failure")
	return true
}

// Clear drops every cached connection, e.g. on sign-out.
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.conns
	r.conns = map[string]*Connection{}
	r.epoch++
	r.mu.Unlock()
	for _, c := range old {
		r.metrics.Invalidated("clear")
		go c.Client.Close()
	}
}

// Descriptors lists active descriptors for tenant pickers.
func (r *Registry) Descriptors(ctx context.Context) ([]tenants.Descriptor, error) {
	ds, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, problems.ConnectionFailed("list", "", err)
	}
	return ds, nil
}
