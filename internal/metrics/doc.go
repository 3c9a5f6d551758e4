// Package metrics provides Prometheus instrumentation for the gateway.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "metadb_gateway_".
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter by method, route kind and status
//   - HTTPRequestDuration: Histogram by method and route kind
//   - HTTPRequestsInFlight: Gauge of requests being processed
//   - HTTPResponseBytes: Counter of body bytes written, by route kind
//
// ## Router Metrics
//
//   - RouterDecisionsTotal: Dispatch decisions by route kind (static/upstream/rejected)
//   - RouterStaticFallthroughs: Static misses that fell through to the upstream
//   - RouterMalformedRequests: Requests rejected with 400 before routing
//
// ## Static and Filesystem Metrics
//
//   - StaticFilesServed / StaticBytesServed
//   - StaticLookupErrors: by reason (not_found, access_denied, traversal)
//   - FilesystemOperationDuration / FilesystemOperationErrors: stat and open
//   - FilesystemRetryAttempts / FilesystemRetryFailures: ESTALE retries
//   - StaticRootAvailable: Gauge maintained by the [Collector]
//
// ## Upstream Metrics
//
//   - UpstreamRequestsTotal: by upstream response status
//   - UpstreamRequestDuration: time to response headers
//   - UpstreamErrorsTotal: by kind (unavailable, timeout, canceled, other)
//   - UpstreamUp: Gauge maintained by the [Collector]
//
// ## Compression Metrics
//
//   - CompressionResponsesTotal: by route kind and outcome (compressed/skipped)
//
// ## Runtime Metrics
//
//   - GoMemoryLimitBytes: GOMEMLIMIT applied at startup (see package memory)
//   - AppInfo: version, commit and Go version labels
//
// # Collector
//
// [Collector] periodically probes the upstream socket and static root through
// a [Prober] and updates the availability gauges:
//
//	collector := metrics.NewCollector(prober, 15*time.Second)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Upstream error rate:
//
//	sum(rate(metadb_gateway_upstream_errors_total[5m])) by (kind)
//
// Share of traffic served from disk:
//
//	sum(rate(metadb_gateway_router_decisions_total{route="static"}[5m])) /
//	sum(rate(metadb_gateway_router_decisions_total[5m]))
package metrics
