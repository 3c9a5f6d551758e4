package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, route := range []string{RouteStatic, RouteUpstream, RouteRejected} {
		RouterDecisionsTotal.WithLabelValues(route)
		HTTPResponseBytes.WithLabelValues(route)
	}

	for _, route := range []string{RouteStatic, RouteUpstream} {
		CompressionResponsesTotal.WithLabelValues(route, "compressed")
		CompressionResponsesTotal.WithLabelValues(route, "skipped")
	}

	for _, reason := range []string{"not_found", "access_denied", "traversal"} {
		StaticLookupErrors.WithLabelValues(reason)
	}

	for _, kind := range []string{"unavailable", "timeout", "canceled", "other"} {
		UpstreamErrorsTotal.WithLabelValues(kind)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
