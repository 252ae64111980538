// Package telemetry centralizes the service's Prometheus collectors. They
// register on the default registry at init and are served by the /metrics
// endpoint.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// ListRequests counts metric queries dispatched, by granularity.
	ListRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "utapi_list_requests_total",
		Help: "Metric queries dispatched, by granularity.",
	}, []string{"level"})

	// ListSeconds tracks wall time spent answering metric queries.
	ListSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "utapi_list_duration_seconds",
		Help:    "Wall time spent answering metric queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"level"})

	// DegradedReads counts per-key read failures that were reported as
	// zero in an otherwise successful query response.
	DegradedReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "utapi_degraded_reads_total",
		Help: "Per-key read failures reported as zero in query responses.",
	})

	// AuthFailures counts requests rejected by signature verification.
	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "utapi_auth_failures_total",
		Help: "Requests rejected by signature verification.",
	})

	// HTTPRequests counts requests served, by route and status code.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "utapi_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"route", "code"})

	// StoreUp reflects the most recent datastore health probe.
	StoreUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "utapi_store_up",
		Help: "Whether the last datastore health probe succeeded.",
	})
)

func init() {
	prometheus.MustRegister(
		ListRequests,
		ListSeconds,
		DegradedReads,
		AuthFailures,
		HTTPRequests,
		StoreUp,
	)
}
