package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fundvault",
			Name:      "operations_total",
			Help:      "Fund operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fundvault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fundvault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	reconcileMismatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fundvault",
			Name:      "reconcile_mismatches",
			Help:      "Funds whose held value disagreed with the ledger in the last reconciliation run.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		operations,
		httpRequests,
		httpDuration,
		reconcileMismatches,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOperation counts one fund operation; result is "ok" or an error kind.
func RecordOperation(operation, result string) {
	operations.WithLabelValues(operation, result).Inc()
}

// RecordHTTPRequest records a finished HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetReconcileMismatches publishes the mismatch count of the last reconciliation.
func SetReconcileMismatches(n int) {
	reconcileMismatches.Set(float64(n))
}
