// Package metrics defines the Prometheus collectors used by the indexer and
// searcher services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so library code can run without a registry.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	DocumentsIndexedTotal *prometheus.CounterVec
	DocumentsUnindexed    *prometheus.CounterVec
	ContainedErrorsTotal  *prometheus.CounterVec
	IndexDocuments        *prometheus.GaugeVec
	IndexKeys             *prometheus.GaugeVec
	SnapshotsTotal        *prometheus.CounterVec
	QueriesTotal          *prometheus.CounterVec
	QueryLatency          *prometheus.HistogramVec
	QueryResultsCount     prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	EventsConsumedTotal   *prometheus.CounterVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dri_documents_indexed_total",
				Help: "Index calls by outcome (changed, unchanged, skipped).",
			},
			[]string{"index", "outcome"},
		),
		DocumentsUnindexed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dri_documents_unindexed_total",
				Help: "Documents removed from an index.",
			},
			[]string{"index"},
		),
		ContainedErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dri_contained_errors_total",
				Help: "Per-document normalization and recurrence errors indexed as empty.",
			},
			[]string{"index", "kind"},
		),
		IndexDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dri_index_documents",
				Help: "Documents with at least one occurrence key.",
			},
			[]string{"index"},
		),
		IndexKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dri_index_keys",
				Help: "Distinct occurrence keys in the reverse map.",
			},
			[]string{"index"},
		),
		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dri_snapshots_total",
				Help: "Snapshot writes and loads by status.",
			},
			[]string{"index", "op", "status"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dri_queries_total",
				Help: "Queries by mode and result type (ok, empty, error).",
			},
			[]string{"index", "mode", "result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dri_query_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dri_query_results_count",
				Help:    "Number of documents returned per query.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dri_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dri_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dri_events_consumed_total",
				Help: "Document index events consumed by action and status.",
			},
			[]string{"action", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsIndexedTotal,
		m.DocumentsUnindexed,
		m.ContainedErrorsTotal,
		m.IndexDocuments,
		m.IndexKeys,
		m.SnapshotsTotal,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsConsumedTotal,
	)

	return m
}

func (m *Metrics) IndexOutcome(index, outcome string) {
	if m == nil {
		return
	}
	m.DocumentsIndexedTotal.WithLabelValues(index, outcome).Inc()
}

func (m *Metrics) Unindexed(index string) {
	if m == nil {
		return
	}
	m.DocumentsUnindexed.WithLabelValues(index).Inc()
}

func (m *Metrics) Contained(index, kind string) {
	if m == nil {
		return
	}
	m.ContainedErrorsTotal.WithLabelValues(index, kind).Inc()
}

func (m *Metrics) IndexSize(index string, documents, keys int) {
	if m == nil {
		return
	}
	m.IndexDocuments.WithLabelValues(index).Set(float64(documents))
	m.IndexKeys.WithLabelValues(index).Set(float64(keys))
}

func (m *Metrics) Snapshot(index, op, status string) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(index, op, status).Inc()
}

func (m *Metrics) Query(index, mode, result string, seconds float64, cacheStatus string, count int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(index, mode, result).Inc()
	m.QueryLatency.WithLabelValues(cacheStatus).Observe(seconds)
	m.QueryResultsCount.Observe(float64(count))
}

func (m *Metrics) Cache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) Event(action, status string) {
	if m == nil {
		return
	}
	m.EventsConsumedTotal.WithLabelValues(action, status).Inc()
}

// HTTPRequest records one served request. route is the matched route
// pattern, not the raw path.
func (m *Metrics) HTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
