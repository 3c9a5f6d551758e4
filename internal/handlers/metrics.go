package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metadb-gateway/internal/logging"
)

// MetricsHandler returns the Prometheus metrics handler. Scrape errors are
// reported to the error log and the scrape is served with what was gathered.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:      logging.NewStdLogger(logging.LevelWarn),
			ErrorHandling: promhttp.ContinueOnError,
		}),
	)
}
