package tags

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tenantdash/pkg/logger"
	"tenantdash/pkg/metrics"
	"tenantdash/pkg/problems"
	"tenantdash/pkg/registry"
	"tenantdash/pkg/tenants"
)

// Connector is the slice of the connection registry the resolver needs.
type Connector interface {
	Resolve(ctx context.Context, key string) (*registry.Connection, error)
	ReportAuthFailure(key string, err error) bool
}

type Options struct {
	Log     *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// Resolver caches one Table per tenant until Reload, Invalidate or Clear.
// A failed load is remembered too: the lookup helpers keep falling back
// without touching the backend until the table is reloaded or Table is
// called again.
type Resolver struct {
	conns   Connector
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu     sync.Mutex
	tables map[string]*Table
	failed map[string]error
	gen    map[string]uint64
	epoch  uint64

	flights singleflight.Group
}

func NewResolver(conns Connector, opts Options) *Resolver {
	return &Resolver{
		conns:   conns,
		log:     logger.OrNop(opts.Log),
		metrics: opts.Metrics,
		tables:  map[string]*Table{},
		failed:  map[string]error{},
		gen:     map[string]uint64{},
	}
}

// Table returns the cached table for key, loading it once on first use. A
// previously failed load is attempted again.
func (r *Resolver) Table(ctx context.Context, key string) (*Table, error) {
	k := tenants.NormalizeKey(key)
	if k == "" {
		return nil, problems.Invalid("mappings", "tenant key is required")
	}
	r.mu.Lock()
	t, ok := r.tables[k]
	r.mu.Unlock()
	if ok {
		return t, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := r.flights.DoChan(k, func() (any, error) {
		return r.load(loadCtx, k)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	case <-ctx.Done():
		return nil, problems.Load("mappings", k, ctx.Err())
	}
}

func (r *Resolver) load(ctx context.Context, k string) (*Table, error) {
	r.mu.Lock()
	if t, ok := r.tables[k]; ok {
		r.mu.Unlock()
		return t, nil
	}
	epoch, gen := r.epoch, r.gen[k]
	r.mu.Unlock()

	conn, err := r.conns.Resolve(ctx, k)
	if err != nil {
		r.metrics.MappingLoad("connection_error")
		return nil, r.fail(k, epoch, gen, problems.Load("mappings", k, err))
	}
	rows, err := conn.Client.TagMappings(ctx, conn.TenantKey)
	if err != nil {
		r.metrics.MappingLoad("error")
		if r.conns.ReportAuthFailure(conn.TenantKey, err) {
			r.log.Warnw("tag mapping load rejected credentials; connection dropped", "tenant", k)
		} else {
			r.log.Warnw("tag mapping load failed", "tenant", k, "err", err)
		}
		return nil, r.fail(k, epoch, gen, problems.Load("mappings", k, err))
	}
	ms := make([]TagMapping, 0, len(rows))
	for _, row := range rows {
		m, ok := fromRow(row)
		if !ok {
			r.log.Warnw("unknown internal stage; treating as new lead", "tenant", k, "tag", m.ExternalTag, "stage", row.InternalStage)
		}
		ms = append(ms, m)
	}
	t := NewTable(ms)
	r.metrics.MappingLoad("ok")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch == epoch && r.gen[k] == gen {
		r.tables[k] = t
		delete(r.failed, k)
	} else {
		r.log.Debugw("tag mappings invalidated while loading; not cached", "tenant", k)
	}
	return t, nil
}

// fail records err for the lookup helpers unless key was invalidated while
// loading.
func (r *Resolver) fail(k string, epoch, gen uint64, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch == epoch && r.gen[k] == gen {
		r.failed[k] = err
	}
	return err
}

// lookupTable serves the pure lookups: cached table, cached failure, or a
// first load.
func (r *Resolver) lookupTable(ctx context.Context, key string) *Table {
	k := tenants.NormalizeKey(key)
	r.mu.Lock()
	t, ok := r.tables[k]
	_, failed := r.failed[k]
	r.mu.Unlock()
	if ok || failed {
		return t
	}
	t, _ = r.Table(ctx, k)
	return t
}

// LoadMappings returns the tenant's active mappings ordered by display order.
func (r *Resolver) LoadMappings(ctx context.Context, key string) ([]TagMapping, error) {
	t, err := r.Table(ctx, key)
	if err != nil {
		return nil, err
	}
	return t.Mappings(), nil
}

// StageOf never fails: an unresolved table behaves like an empty one.
func (r *Resolver) StageOf(ctx context.Context, key, tag string) Stage {
	t := r.lookupTable(ctx, key)
	if _, ok := t.lookup(tag); !ok {
		r.metrics.StageFallback()
	}
	return t.StageOf(tag)
}

// LabelOf returns the raw tag when it is unmapped or the table is unresolved.
func (r *Resolver) LabelOf(ctx context.Context, key, tag string) string {
	t := r.lookupTable(ctx, key)
	return t.LabelOf(tag)
}

// StagesByOrder is empty when the table cannot be loaded.
func (r *Resolver) StagesByOrder(ctx context.Context, key string) []Stage {
	t := r.lookupTable(ctx, key)
	return t.StagesByOrder()
}

// Reload drops the cached table for key and loads it again.
func (r *Resolver) Reload(ctx context.Context, key string) (*Table, error) {
	r.Invalidate(key)
	return r.Table(ctx, key)
}

func (r *Resolver) Invalidate(key string) {
	k := tenants.NormalizeKey(key)
	r.mu.Lock()
	delete(r.tables, k)
	delete(r.failed, k)
	r.gen[k]++
	r.mu.Unlock()
	r.flights.Forget(k)
}

// Clear drops every cached table.
func (r *Resolver) Clear() {
	r.mu.Lock()
	old := r.tables
	r.tables = map[string]*Table{}
	r.failed = map[string]error{}
	r.epoch++
	r.mu.Unlock()
	for k := range old {
		r.flights.Forget(k)
	}
}
