// Package upstream forwards requests to the metadata application server over
// a Unix domain socket.
//
// The Forwarder is an httputil.ReverseProxy with a pooled transport that
// always dials the configured socket. Before forwarding it replaces any
// client-supplied X-MB-Remote-Addr header with the connecting peer IP, so
// the application can trust that header. Transport failures are classified:
//
//   - dial failures (socket missing, connection refused) answer 502
//   - connect or response-header timeouts answer 504
//   - client cancellation is recorded as 499 and nothing is written
//
// Requests are never retried. Protocol upgrades such as WebSocket are
// relayed by the proxy's upgrade path.
package upstream
