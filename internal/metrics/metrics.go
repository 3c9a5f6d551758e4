package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route kinds used as the "route" label across HTTP and router metrics.
const (
	RouteStatic   = "static"
	RouteUpstream = "upstream"
	RouteAdmin    = "admin"
	RouteRejected = "rejected"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metadb_gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metadb_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPResponseBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_http_response_bytes_total",
			Help: "Total response body bytes written to clients",
		},
		[]string{"route"},
	)
)

// Router metrics
var (
	RouterDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_router_decisions_total",
			Help: "Dispatch decisions made by the request router",
		},
		[]string{"route"},
	)

	RouterStaticFallthroughs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metadb_gateway_router_static_fallthrough_total",
			Help: "Static lookups that missed and fell through to the upstream",
		},
	)

	RouterMalformedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metadb_gateway_router_malformed_requests_total",
			Help: "Requests rejected before routing because the URI was malformed",
		},
	)
)

// Static file metrics
var (
	StaticFilesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metadb_gateway_static_files_served_total",
			Help: "Total number of static files served",
		},
	)

	StaticBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metadb_gateway_static_bytes_served_total",
			Help: "Size in bytes of static files served (before compression)",
		},
	)

	StaticLookupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_static_lookup_errors_total",
			Help: "Static lookups that failed, by reason",
		},
		[]string{"reason"}, // "not_found", "access_denied", "traversal"
	)
)

// Upstream metrics
var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_upstream_requests_total",
			Help: "Requests forwarded to the upstream socket, by response status",
		},
		[]string{"status"},
	)

	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metadb_gateway_upstream_request_duration_seconds",
			Help:    "Time from dispatch to upstream response headers",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_upstream_errors_total",
			Help: "Upstream failures, by kind",
		},
		[]string{"kind"}, // "unavailable", "timeout", "canceled", "other"
	)

	UpstreamUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metadb_gateway_upstream_up",
			Help: "Whether the upstream socket accepted the last probe (1 = up, 0 = down)",
		},
	)
)

// Compression metrics
var (
	CompressionResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_compression_responses_total",
			Help: "Responses seen by the compression policy, by outcome",
		},
		[]string{"route", "outcome"}, // "compressed", "skipped"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metadb_gateway_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations under the static root",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_filesystem_operation_errors_total",
			Help: "Filesystem operation errors under the static root",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_filesystem_retry_attempts_total",
			Help: "Retries after stale file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadb_gateway_filesystem_retry_failures_total",
			Help: "Operations that still failed after exhausting retries",
		},
		[]string{"operation"},
	)

	StaticRootAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metadb_gateway_static_root_available",
			Help: "Whether the static root directory is readable (1 = yes, 0 = no)",
		},
	)
)

// Runtime metrics
var (
	GoMemoryLimitBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metadb_gateway_go_memory_limit_bytes",
			Help: "Soft memory limit configured for the Go runtime (0 = unlimited)",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metadb_gateway_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
