package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clusterscope/clusterscope/internal/scope"
)

// Metrics holds every Prometheus collector this repository registers.
// Counters that need to be incremented from inside a hot path (builder
// construction errors, registry cache hit/miss) are owned here and
// incremented through methods, rather than importing prometheus into
// internal/builder or internal/processor directly — those packages stay
// free to run without a metrics backend wired in at all (e.g. under
// test).
type Metrics struct {
	meetTotal        prometheus.CounterFunc
	meetInvalidTotal prometheus.CounterFunc

	buildErrors  *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	remoteErrors *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		meetTotal: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "scoped_meet_total",
			Help: "Total number of Constrain (lattice meet) calls.",
		}, func() float64 {
			meets, _ := scope.Stats()
			return float64(meets)
		}),
		meetInvalidTotal: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "scoped_meet_invalid_total",
			Help: "Total number of Constrain calls that resolved to InvalidScope.",
		}, func() float64 {
			_, invalids := scope.Stats()
			return float64(invalids)
		}),
		buildErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scoped_build_errors_total",
			Help: "Scope Builder construction failures, by error code.",
		}, []string{"code"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scoped_registry_cache_hits_total",
			Help: "Registry Children() calls served from the cached snapshot.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scoped_registry_cache_misses_total",
			Help: "Registry Children() calls that required a remote RPC.",
		}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scoped_registry_remote_errors_total",
			Help: "Registry remote children() RPC failures, by error code.",
		}, []string{"code"}),
	}

	reg.MustRegister(m.meetTotal, m.meetInvalidTotal, m.buildErrors, m.cacheHits, m.cacheMisses, m.remoteErrors)
	return m
}

func (m *Metrics) IncBuildError(code string)  { m.buildErrors.WithLabelValues(code).Inc() }
func (m *Metrics) IncCacheHit()               { m.cacheHits.Inc() }
func (m *Metrics) IncCacheMiss()              { m.cacheMisses.Inc() }
func (m *Metrics) IncRemoteError(code string) { m.remoteErrors.WithLabelValues(code).Inc() }
