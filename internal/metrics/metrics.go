// Package metrics defines the Prometheus collectors of the service and the
// admin listener that exposes them together with health probes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aiservice"

// Query outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotReady = "not_ready"
)

// Metrics holds all Prometheus collectors for the service. Each instance
// owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         prometheus.Histogram
	DocumentsLoaded      prometheus.Gauge
	ChunksIndexed        prometheus.Gauge
	IndexBuildSeconds    prometheus.Gauge
}

// New creates and registers all collectors on a private registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total questions by outcome (ok, error, not_ready).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_latency_seconds",
				Help:      "Time to answer a question, retrieval and synthesis included.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		DocumentsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "documents_loaded",
				Help:      "Documents loaded into the index at startup.",
			},
		),
		ChunksIndexed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chunks_indexed",
				Help:      "Chunks embedded and stored in the index.",
			},
		),
		IndexBuildSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_build_seconds",
				Help:      "Wall time of the startup index build.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.DocumentsLoaded,
		m.ChunksIndexed,
		m.IndexBuildSeconds,
	)
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBuild records the result of the startup index build.
func (m *Metrics) ObserveBuild(documents, chunks int, elapsed time.Duration) {
	m.DocumentsLoaded.Set(float64(documents))
	m.ChunksIndexed.Set(float64(chunks))
	m.IndexBuildSeconds.Set(elapsed.Seconds())
}

// ObserveQuery records one answered or failed question.
func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeNotReady {
		m.QueryLatency.Observe(elapsed.Seconds())
	}
}

// RegisterEmbeddingCache exports hit and miss counters read from stats.
func (m *Metrics) RegisterEmbeddingCache(stats func() (hits, misses int64)) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Embedding lookups served from the cache.",
		}, func() float64 {
			h, _ := stats()
			return float64(h)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Embedding lookups that reached the embedding backend.",
		}, func() float64 {
			_, miss := stats()
			return float64(miss)
		}),
	)
}
