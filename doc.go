// Package main provides the entry point for the metadb gateway.
//
// The gateway fronts the MusicBrainz metadata application server: files
// under the static prefix are served from disk, everything else is relayed
// to the application over its Unix socket with the client address in
// X-MB-Remote-Addr, and eligible responses are gzip-compressed per route.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads environment variables (see package startup)
//  2. Memory Configuration: Sets GOMEMLIMIT from the container limit
//  3. Logs: Opens the error log and the W3C access log
//  4. Component Initialization:
//     - Static roots for the prefix and, optionally, the site root
//     - Upstream forwarder with a pooled Unix-socket transport
//     - Router with per-route compression policies
//     - Metrics collector probing both backends
//  5. HTTP Servers: The gateway listener and the admin listener run
//     under one errgroup
//  6. Graceful Shutdown: SIGINT/SIGTERM drains both servers within 30s
//
// # Admin Endpoints
//
//   - /metrics: Prometheus metrics
//   - /healthz, /health: Backend status as JSON
//   - /livez: Liveness probe
//   - /readyz: Readiness probe (upstream reachable and static roots readable)
//   - /version: Build information
package main
