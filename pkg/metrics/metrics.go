// Package metrics holds the Prometheus collectors for tenant resolution.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ConnectionCacheHits *prometheus.CounterVec
	Constructions       *prometheus.CounterVec
	Coalesced           prometheus.Counter
	Invalidations       *prometheus.CounterVec
	PermissionResolves  *prometheus.CounterVec
	MappingLoads        *prometheus.CounterVec
	StageFallbacks      prometheus.Counter
	StaleDiscards       *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// main and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantdash_connection_cache_hits_total",
			Help: "Resolve calls served from the connection cache.",
		}, []string{"tenant"}),
		Constructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantdash_connection_constructions_total",
			Help: "Tenant connection construction attempts by result.",
		}, []string{"tenant", "result"}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantdash_connection_coalesced_total",
			Help: "Resolve calls that shared another caller's in-flight construction.",
		}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantdash_connection_invalidations_total",
			Help: "Cached connections dropped, by reason.",
		}, []string{"reason"}),
		PermissionResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantdash_permission_resolves_total",
			Help: "Effective permission resolutions by outcome.",
		}, []string{"outcome"}),
		MappingLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantdash_tag_mapping_loads_total",
			Help: "Tag mapping table loads by result.",
		}, []string{"result"}),
		StageFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantdash_stage_fallbacks_total",
			Help: "Tag lookups that fell back to the new-lead stage.",
		}),
		StaleDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantdash_stale_results_discarded_total",
			Help: "Async results dropped because the active tenant or principal changed.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.ConnectionCacheHits, m.Constructions, m.Coalesced, m.Invalidations,
			m.PermissionResolves, m.MappingLoads, m.StageFallbacks, m.StaleDiscards)
	}
	return m
}

func (m *Metrics) CacheHit(tenant string) {
	if m != nil {
		m.ConnectionCacheHits.WithLabelValues(tenant).Inc()
	}
}

func (m *Metrics) Construction(tenant, result string) {
	if m != nil {
		m.Constructions.WithLabelValues(tenant, result).Inc()
	}
}

func (m *Metrics) Shared() {
	if m != nil {
		m.Coalesced.Inc()
	}
}

func (m *Metrics) Invalidated(reason string) {
	if m != nil {
		m.Invalidations.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PermissionResolve(outcome string) {
	if m != nil {
		m.PermissionResolves.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) MappingLoad(result string) {
	if m != nil {
		m.MappingLoads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) StageFallback() {
	if m != nil {
		m.StageFallbacks.Inc()
	}
}

func (m *Metrics) StaleDiscard(kind string) {
	if m != nil {
		m.StaleDiscards.WithLabelValues(kind).Inc()
	}
}
