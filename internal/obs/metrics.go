package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus gauge/histogram/counter set the health endpoint
// reports: pool occupancy, cache hit/miss, BM25 rebuilds, per-stage search
// latency.
type Metrics struct {
	PoolActive    prometheus.Gauge
	PoolAvailable prometheus.Gauge
	PoolPeak      prometheus.Gauge

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	BM25Rebuilds *prometheus.CounterVec
	BM25DocCount *prometheus.GaugeVec

	StageLatency *prometheus.HistogramVec
}

// NewMetrics registers and returns the metric set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "retrieval", Subsystem: "vector_pool", Name: "active_connections",
			Help: "Connections currently borrowed from the vector-store pool.",
		}),
		PoolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "retrieval", Subsystem: "vector_pool", Name: "available_connections",
			Help: "Connections idle in the vector-store pool.",
		}),
		PoolPeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "retrieval", Subsystem: "vector_pool", Name: "peak_active_connections",
			Help: "High-water mark of concurrently borrowed connections.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retrieval", Subsystem: "cache", Name: "hits_total",
			Help: "Cache hits by namespace (result, bm25).",
		}, []string{"namespace"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retrieval", Subsystem: "cache", Name: "misses_total",
			Help: "Cache misses by namespace (result, bm25).",
		}, []string{"namespace"}),
		BM25Rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retrieval", Subsystem: "bm25", Name: "rebuilds_total",
			Help: "BM25 index rebuilds by access level.",
		}, []string{"access_level"}),
		BM25DocCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "retrieval", Subsystem: "bm25", Name: "doc_count",
			Help: "Documents currently indexed per access level.",
		}, []string{"access_level"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "retrieval", Subsystem: "retriever", Name: "stage_latency_seconds",
			Help:    "Per-stage hybrid-search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.PoolActive, m.PoolAvailable, m.PoolPeak,
		m.CacheHits, m.CacheMisses,
		m.BM25Rebuilds, m.BM25DocCount,
		m.StageLatency,
	)
	return m
}
