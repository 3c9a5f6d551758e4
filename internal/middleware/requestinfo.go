package middleware

import (
	"context"
	"net/http"
)

type requestInfoKey struct{}

// RequestInfo carries per-request facts discovered by inner handlers back out
// to the logging and metrics middleware.
type RequestInfo struct {
	// Route is the kind of rule that handled the request (static, upstream, rejected)
	Route string
}

// WithRequestInfo attaches a RequestInfo to the request context if one is not
// already present and returns the request and the holder. defaultRoute is
// reported when no handler sets a route.
func WithRequestInfo(r *http.Request, defaultRoute string) (*http.Request, *RequestInfo) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*RequestInfo); ok {
		return r, info
	}
	info := &RequestInfo{Route: defaultRoute}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)), info
}

// SetRoute records which route kind handled the request. It is a no-op when
// the request has no RequestInfo.
func SetRoute(r *http.Request, route string) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*RequestInfo); ok {
		info.Route = route
	}
}

// RouteFromRequest returns the recorded route kind, or "" if none.
func RouteFromRequest(r *http.Request) string {
	if info, ok := r.Context().Value(requestInfoKey{}).(*RequestInfo); ok {
		return info.Route
	}
	return ""
}
