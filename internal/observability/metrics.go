// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for analysis requests.
const (
	OutcomeInvalid     = "invalid"
	OutcomeCacheHit    = "cache_hit"
	OutcomeSnapshotHit = "snapshot_hit"
	OutcomeSuccess     = "success"
	OutcomePartial     = "partial"
	OutcomeFailed      = "failed"
	OutcomeCancelled   = "cancelled"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Analysis metrics
	AnalysisRequests  *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	CoalescedRequests prometheus.Counter

	// Cache metrics
	CacheEntries       prometheus.Gauge
	CacheEvictions     prometheus.Counter
	CacheInvalidations *prometheus.CounterVec

	// Fetch metrics
	RecordsFetched prometheus.Counter
	RecordsSkipped prometheus.Counter
	BatchFailures  *prometheus.CounterVec
	RateLimitHits  *prometheus.CounterVec
	RPCCallLatency *prometheus.HistogramVec

	// Store metrics
	StoreErrors *prometheus.CounterVec

	// Watcher metrics
	WatchedAddresses prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_counterparty_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AnalysisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total number of analysis requests by outcome",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Duration of uncached analysis runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}),
		CoalescedRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "coalesced_requests_total",
			Help:      "Total number of requests that shared an in-flight run",
		}),

		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries in the result cache",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted to respect the size cap",
		}),
		CacheInvalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of cache invalidations by source",
		}, []string{"source"}),

		RecordsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "records_fetched_total",
			Help:      "Total number of transaction records retrieved",
		}),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "records_skipped_total",
			Help:      "Total number of records skipped for missing metadata",
		}),
		BatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "batch_failures_total",
			Help:      "Total number of skipped batches by provider tier",
		}, []string{"tier"}),
		RateLimitHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of throttling signals by provider tier",
		}, []string{"tier"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of store errors by store and operation",
		}, []string{"store", "operation"}),

		WatchedAddresses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "watched_addresses",
			Help:      "Current number of addresses with an activity subscription",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordAnalysis increments the analysis requests counter for outcome.
func RecordAnalysis(outcome string) {
	DefaultMetrics.AnalysisRequests.WithLabelValues(outcome).Inc()
}

// RecordAnalysisDuration records the duration of an uncached run.
func RecordAnalysisDuration(d time.Duration) {
	DefaultMetrics.AnalysisDuration.Observe(d.Seconds())
}

// RecordCoalesced increments the coalesced requests counter.
func RecordCoalesced() {
	DefaultMetrics.CoalescedRequests.Inc()
}

// UpdateCacheEntries updates the cache entries gauge.
func UpdateCacheEntries(n int) {
	DefaultMetrics.CacheEntries.Set(float64(n))
}

// RecordCacheEvictions adds n to the evictions counter.
func RecordCacheEvictions(n int) {
	if n > 0 {
		DefaultMetrics.CacheEvictions.Add(float64(n))
	}
}

// RecordInvalidation records a cache invalidation from source.
func RecordInvalidation(source string) {
	DefaultMetrics.CacheInvalidations.WithLabelValues(source).Inc()
}

// RecordFetch records the record counters of one run.
func RecordFetch(fetched, skipped int) {
	DefaultMetrics.RecordsFetched.Add(float64(fetched))
	DefaultMetrics.RecordsSkipped.Add(float64(skipped))
}

// RecordBatchFailure increments the skipped batches counter.
func RecordBatchFailure(tier string) {
	DefaultMetrics.BatchFailures.WithLabelValues(tier).Inc()
}

// RecordRateLimitHit increments the throttling counter.
func RecordRateLimitHit(tier string) {
	DefaultMetrics.RateLimitHits.WithLabelValues(tier).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, d time.Duration) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordStoreError increments the store error counter.
func RecordStoreError(store, operation string) {
	DefaultMetrics.StoreErrors.WithLabelValues(store, operation).Inc()
}

// UpdateWatchedAddresses updates the watched addresses gauge.
func UpdateWatchedAddresses(n int) {
	DefaultMetrics.WatchedAddresses.Set(float64(n))
}
