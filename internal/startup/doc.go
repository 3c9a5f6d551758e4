// Package startup handles gateway initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - LISTEN_ADDR: Gateway listen address (default: :8080)
//   - SERVER_NAME: Virtual host name, reported in the access log header (default: metadb)
//   - STATIC_ROOT: Directory served under STATIC_PREFIX (default: ./static)
//   - STATIC_PREFIX: URL prefix of the static tree (default: /static)
//   - STATIC_TRY_ROOT: Also try files at the site root before proxying (default: false)
//   - STATIC_MAX_AGE: Cache-Control max-age for static files, 0 disables (default: 0)
//   - UPSTREAM_SOCKET: Unix socket of the application server (default: /tmp/metadb.uwsgi.sock)
//   - UPSTREAM_TIMEOUT: Wait for upstream response headers (default: 60s)
//   - UPSTREAM_CONNECT_TIMEOUT: Upstream connect timeout (default: 5s)
//   - UPSTREAM_MAX_IDLE_CONNS: Pooled idle upstream connections (default: 16)
//   - GZIP: Enable response compression (default: on)
//   - GZIP_HTTP_VERSION: Lowest request protocol to compress for (default: 1.0)
//   - GZIP_BUFFERS: Staging buffers as "<count> <size>" (default: 16 8k)
//   - GZIP_MIN_LENGTH: Smallest response body to compress (default: 20)
//   - GZIP_COMP_LEVEL: Compression level 1-9 (default: 6)
//   - GZIP_PROXIED: Proxied-request flags, e.g. "any" or "no-cache no-store" (default: any)
//   - GZIP_VARY: Send Vary: Accept-Encoding (default: on)
//   - GZIP_TYPES_STATIC, GZIP_TYPES_PROXY: Override the eligible media types per route
//   - ACCESS_LOG: "-" for stdout, "off", or a file path (default: -)
//   - ERROR_LOG: "-" for stderr or a file path (default: -)
//   - ADMIN_ADDR: Metrics and health listener (default: 127.0.0.1:9090)
//   - METRICS_ENABLED: Serve the admin listener (default: true)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//
// Durations accept Go syntax ("90s") or bare seconds ("60").
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogHTTPRoutes]: Routing tables in evaluation order
//   - [LogServerStarted]: Endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownStep], [LogShutdownComplete]
package startup
