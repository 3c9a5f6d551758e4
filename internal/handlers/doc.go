// Package handlers provides the gateway's admin endpoints, served on a
// separate listener from proxied traffic:
//   - Health, liveness and readiness probes backed by upstream and
//     static-root checks
//   - Build and version information
//   - The Prometheus metrics endpoint
//
// [Handlers] also satisfies metrics.Prober so the background collector
// shares the same checks.
package handlers
