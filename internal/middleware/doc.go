// Package middleware provides HTTP middleware for the gateway.
//
// It includes:
//   - Access logging in W3C Extended Log Format
//   - Per-route gzip compression policies
//   - Prometheus request metrics labelled by route kind
//   - A request-scoped RequestInfo that lets the router report its decision
package middleware
