package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"metadb-gateway/internal/logging"
	"metadb-gateway/internal/metrics"
	"metadb-gateway/internal/middleware"
	"metadb-gateway/internal/static"
)

// ErrMalformedRequest is returned by Validate for request targets the
// gateway refuses to route.
var ErrMalformedRequest = errors.New("malformed request")

// StaticFiles is the part of a static.Root the router needs.
type StaticFiles interface {
	Prefix() string
	Resolve(urlPath string) (*static.File, error)
	Serve(w http.ResponseWriter, r *http.Request, file *static.File) error
}

// Route is one rule of the ordered routing table. Exactly one of Static and
// Upstream is set. Static rules only claim a request when the path resolves
// to a servable file; otherwise evaluation continues with the next rule.
type Route struct {
	PathPrefix string
	Static     StaticFiles
	Upstream   http.Handler
}

// Config configures a Router.
type Config struct {
	// Routes are evaluated in order; the last one must be an upstream
	// catch-all for "/".
	Routes []Route
	// StaticCompression applies to responses from static rules
	StaticCompression middleware.CompressionPolicy
	// ProxyCompression applies to responses from upstream rules
	ProxyCompression middleware.CompressionPolicy
}

// Router validates requests and dispatches them through the routing table.
type Router struct {
	mux    *mux.Router
	routes []Route
}

// dispatch carries the static lookup from the route matcher to the handler
// so a file is only resolved once per rule.
type dispatch struct {
	file *static.File
	err  error
}

type dispatchKey struct{}

// New builds a Router from cfg.
func New(cfg Config) (*Router, error) {
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("at least one route required")
	}
	for i, rt := range cfg.Routes {
		if (rt.Static == nil) == (rt.Upstream == nil) {
			return nil, fmt.Errorf("route %d (%s): exactly one of static root or upstream required", i, rt.PathPrefix)
		}
		if !strings.HasPrefix(rt.PathPrefix, "/") {
			return nil, fmt.Errorf("route %d: prefix %q must start with /", i, rt.PathPrefix)
		}
		if rt.Static != nil && rt.Static.Prefix() != rt.PathPrefix {
			return nil, fmt.Errorf("route %d: prefix %q does not match static root prefix %q", i, rt.PathPrefix, rt.Static.Prefix())
		}
	}
	last := cfg.Routes[len(cfg.Routes)-1]
	if last.Upstream == nil || last.PathPrefix != "/" {
		return nil, fmt.Errorf("last route must be an upstream catch-all for /")
	}
	for _, policy := range []middleware.CompressionPolicy{cfg.StaticCompression, cfg.ProxyCompression} {
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("invalid compression policy: %w", err)
		}
	}

	r := mux.NewRouter()
	// Paths are served as received; containment is enforced by the static root
	r.SkipClean(true)

	staticGzip := middleware.Compression(cfg.StaticCompression)
	proxyGzip := middleware.Compression(cfg.ProxyCompression)

	for _, rt := range cfg.Routes {
		if rt.Static != nil {
			r.MatcherFunc(staticMatcher(rt)).Handler(staticGzip(staticHandler(rt))).
				Name("static:" + rt.PathPrefix)
			continue
		}
		r.MatcherFunc(prefixMatcher(rt.PathPrefix)).Handler(proxyGzip(upstreamHandler(rt))).
			Name("upstream:" + rt.PathPrefix)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	return &Router{mux: r, routes: cfg.Routes}, nil
}

// ServeHTTP validates the request and dispatches it to the first matching rule.
func (rtr *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := Validate(r); err != nil {
		middleware.SetRoute(r, metrics.RouteRejected)
		metrics.RouterDecisionsTotal.WithLabelValues(metrics.RouteRejected).Inc()
		metrics.RouterMalformedRequests.Inc()
		logging.Debug("Rejected request: %v", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ctx := context.WithValue(r.Context(), dispatchKey{}, &dispatch{})
	rtr.mux.ServeHTTP(w, r.WithContext(ctx))
}

// Mux exposes the underlying gorilla/mux router for route listing.
func (rtr *Router) Mux() *mux.Router {
	return rtr.mux
}

// Routes returns the routing table in evaluation order.
func (rtr *Router) Routes() []Route {
	return rtr.routes
}

// Validate rejects request targets that are not absolute paths, contain
// control bytes once decoded, or carry invalid percent-encoding.
func Validate(r *http.Request) error {
	if r.URL == nil {
		return fmt.Errorf("%w: missing URL", ErrMalformedRequest)
	}
	if !strings.HasPrefix(r.URL.Path, "/") {
		return fmt.Errorf("%w: path %q is not absolute", ErrMalformedRequest, r.URL.Path)
	}
	for i := 0; i < len(r.URL.Path); i++ {
		if c := r.URL.Path[i]; c < 0x20 || c == 0x7f {
			return fmt.Errorf("%w: control byte 0x%02x in path", ErrMalformedRequest, c)
		}
	}
	if r.URL.RawPath != "" {
		if _, err := url.PathUnescape(r.URL.RawPath); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}
	return nil
}

func hasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimRight(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func prefixMatcher(prefix string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return hasPrefix(r.URL.Path, prefix)
	}
}

// staticMatcher claims GET and HEAD requests whose path resolves under the
// root. Misses are counted as fallthroughs and left to later rules.
func staticMatcher(rt Route) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			return false
		}
		if !hasPrefix(r.URL.Path, rt.PathPrefix) {
			return false
		}

		file, err := rt.Static.Resolve(r.URL.Path)
		if errors.Is(err, static.ErrNotFound) {
			metrics.RouterStaticFallthroughs.Inc()
			return false
		}

		if d, ok := r.Context().Value(dispatchKey{}).(*dispatch); ok {
			d.file, d.err = file, err
		}
		return true
	}
}

func staticHandler(rt Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.SetRoute(r, metrics.RouteStatic)
		metrics.RouterDecisionsTotal.WithLabelValues(metrics.RouteStatic).Inc()

		d, ok := r.Context().Value(dispatchKey{}).(*dispatch)
		if !ok {
			// Reached without Router.ServeHTTP
			d = &dispatch{}
			d.file, d.err = rt.Static.Resolve(r.URL.Path)
		}

		err := d.err
		if err == nil {
			err = rt.Static.Serve(w, r, d.file)
		}
		if err != nil {
			status := static.StatusFor(err)
			if status == http.StatusInternalServerError {
				logging.Error("Static file %s failed: %v", r.URL.Path, err)
			}
			http.Error(w, http.StatusText(status), status)
		}
	})
}

func upstreamHandler(rt Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.SetRoute(r, metrics.RouteUpstream)
		metrics.RouterDecisionsTotal.WithLabelValues(metrics.RouteUpstream).Inc()
		rt.Upstream.ServeHTTP(w, r)
	})
}
