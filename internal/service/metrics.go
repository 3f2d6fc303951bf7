package service

import (
	"go-content-cache/internal/pubcache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of the content cache. A nil *Metrics
// records nothing.
type Metrics struct {
	kitsApplied       prometheus.Counter
	kitsRejected      *prometheus.CounterVec
	nodesRemoved      prometheus.Counter
	generation        prometheus.Gauge
	nodes             prometheus.Gauge
	rehydrateDuration *prometheus.HistogramVec
	typeLookups       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		kitsApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "contentcache_kits_applied_total",
			Help: "Kits applied to the content store",
		}),
		kitsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contentcache_kits_rejected_total",
			Help: "Kits rejected by the content store by reason",
		}, []string{"reason"}),
		nodesRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "contentcache_nodes_removed_total",
			Help: "Nodes removed from the content store",
		}),
		generation: f.NewGauge(prometheus.GaugeOpts{
			Name: "contentcache_generation",
			Help: "Last committed generation of the content store",
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "contentcache_nodes",
			Help: "Nodes currently in the content store",
		}),
		rehydrateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contentcache_rehydrate_duration_seconds",
			Help:    "Time spent loading and applying all kits",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source"}),
		typeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contentcache_content_type_lookups_total",
			Help: "Content type lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeApply(res pubcache.ApplyResult) {
	if m == nil {
		return
	}
	m.kitsApplied.Add(float64(res.Applied))
	m.nodesRemoved.Add(float64(res.Removed))
	m.kitsRejected.WithLabelValues("orphan").Add(float64(len(res.Orphans)))
	m.kitsRejected.WithLabelValues("failed").Add(float64(len(res.Failed)))
}

func (m *Metrics) observeRemoved(n int) {
	if m == nil {
		return
	}
	m.nodesRemoved.Add(float64(n))
}

func (m *Metrics) observeStore(s *pubcache.ContentStore) {
	if m == nil {
		return
	}
	m.generation.Set(float64(s.Generation()))
	m.nodes.Set(float64(s.Len()))
}

func (m *Metrics) observeRehydrate(source string, seconds float64) {
	if m == nil {
		return
	}
	m.rehydrateDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) observeTypeLookup(result string) {
	if m == nil {
		return
	}
	m.typeLookups.WithLabelValues(result).Inc()
}
