package middleware

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"metadb-gateway/internal/metrics"
)

// HTTPVersion is a protocol version used as the compression floor.
type HTTPVersion struct {
	Major int
	Minor int
}

// String formats the version as "major.minor".
func (v HTTPVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseHTTPVersion parses "1.0", "1.1" or "HTTP/1.1".
func ParseHTTPVersion(s string) (HTTPVersion, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "HTTP/")
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		minor = "0"
	}
	maj, err := strconv.Atoi(major)
	if err != nil || maj < 0 {
		return HTTPVersion{}, fmt.Errorf("invalid HTTP version %q", s)
	}
	mnr, err := strconv.Atoi(minor)
	if err != nil || mnr < 0 {
		return HTTPVersion{}, fmt.Errorf("invalid HTTP version %q", s)
	}
	return HTTPVersion{Major: maj, Minor: mnr}, nil
}

// ProxiedMode decides whether responses to requests that arrived through
// another proxy (carrying a Via header) may be compressed. It is a set of
// flags; a response qualifies when any flag matches.
type ProxiedMode uint16

const (
	ProxiedOff            ProxiedMode = 0
	ProxiedExpired        ProxiedMode = 1 << iota // Expires header disables caching
	ProxiedNoCache                                // Cache-Control: no-cache
	ProxiedNoStore                                // Cache-Control: no-store
	ProxiedPrivate                                // Cache-Control: private
	ProxiedNoLastModified                         // no Last-Modified header
	ProxiedNoETag                                 // no ETag header
	ProxiedAuth                                   // request carries Authorization
	ProxiedAny
)

var proxiedNames = map[string]ProxiedMode{
	"off":              ProxiedOff,
	"expired":          ProxiedExpired,
	"no-cache":         ProxiedNoCache,
	"no-store":         ProxiedNoStore,
	"private":          ProxiedPrivate,
	"no_last_modified": ProxiedNoLastModified,
	"no_etag":          ProxiedNoETag,
	"auth":             ProxiedAuth,
	"any":              ProxiedAny,
}

// ParseProxiedMode parses a space or comma separated list of flag names,
// e.g. "any" or "expired no-cache no-store".
func ParseProxiedMode(s string) (ProxiedMode, error) {
	var mode ProxiedMode
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	for _, f := range fields {
		flag, ok := proxiedNames[strings.ToLower(f)]
		if !ok {
			return ProxiedOff, fmt.Errorf("unknown proxied mode %q", f)
		}
		if flag == ProxiedOff && len(fields) > 1 {
			return ProxiedOff, fmt.Errorf("proxied mode \"off\" cannot be combined with other flags")
		}
		mode |= flag
	}
	return mode, nil
}

// CompressionPolicy holds the gzip settings applied to one route's responses.
// A policy is immutable once the router is built.
type CompressionPolicy struct {
	Enabled bool
	// MinHTTPVersion is the lowest request protocol that gets compressed output
	MinHTTPVersion HTTPVersion
	// EligibleTypes lists the media types (without parameters) to compress
	EligibleTypes []string
	// BufferCount and BufferSize size the staging buffer between the
	// compressor and the connection (BufferCount × BufferSize bytes).
	BufferCount int
	BufferSize  int
	// Vary adds "Vary: Accept-Encoding" to every eligible response
	Vary bool
	// Proxied controls compression for requests that came through a proxy
	Proxied ProxiedMode
	// MinLength is the smallest body, in bytes, worth compressing
	MinLength int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// Route labels compression metrics
	Route string
}

// DefaultStaticCompressionPolicy returns the policy used for the static tree
func DefaultStaticCompressionPolicy() CompressionPolicy {
	return CompressionPolicy{
		Enabled:        true,
		MinHTTPVersion: HTTPVersion{Major: 1, Minor: 0},
		EligibleTypes: []string{
			"text/plain",
			"text/css",
			"text/xml",
			"text/javascript",
			"application/json",
			"application/javascript",
			"application/xml",
		},
		BufferCount: 16,
		BufferSize:  8 * 1024,
		Vary:        true,
		Proxied:     ProxiedAny,
		MinLength:   20,
		Level:       6,
		Route:       metrics.RouteStatic,
	}
}

// DefaultProxyCompressionPolicy returns the policy used for upstream responses
func DefaultProxyCompressionPolicy() CompressionPolicy {
	p := DefaultStaticCompressionPolicy()
	p.EligibleTypes = []string{
		"text/html",
		"text/plain",
		"text/css",
		"text/javascript",
		"application/json",
		"application/javascript",
		"application/xml",
	}
	p.Route = metrics.RouteUpstream
	return p
}

// Validate checks the policy for values the compressor cannot use.
func (p CompressionPolicy) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Level < gzip.HuffmanOnly || p.Level > gzip.BestCompression {
		return fmt.Errorf("gzip level %d out of range", p.Level)
	}
	if p.BufferCount <= 0 || p.BufferSize <= 0 {
		return fmt.Errorf("gzip buffers must be positive, got %d × %d", p.BufferCount, p.BufferSize)
	}
	if p.MinLength < 0 {
		return fmt.Errorf("gzip min length must not be negative, got %d", p.MinLength)
	}
	return nil
}

// typeEligible checks if the content type should be compressed
func (p *CompressionPolicy) typeEligible(contentType string) bool {
	if contentType == "" {
		return false
	}

	// Extract the media type (ignore charset and other parameters)
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))

	for _, eligible := range p.EligibleTypes {
		if eligible == "*" || mediaType == eligible {
			return true
		}
	}

	return false
}

// proxiedAllowed applies the Proxied flags. Requests without a Via header
// are not proxied and always pass.
func (p *CompressionPolicy) proxiedAllowed(r *http.Request, h http.Header) bool {
	if r.Header.Get("Via") == "" {
		return true
	}
	mode := p.Proxied
	switch {
	case mode&ProxiedAny != 0:
		return true
	case mode == ProxiedOff:
		return false
	}

	cacheControl := strings.ToLower(h.Get("Cache-Control"))
	if mode&ProxiedExpired != 0 {
		if exp := h.Get("Expires"); exp != "" {
			t, err := http.ParseTime(exp)
			if err != nil || !t.After(time.Now()) {
				return true
			}
		}
	}
	if mode&ProxiedNoCache != 0 && hasDirective(cacheControl, "no-cache") {
		return true
	}
	if mode&ProxiedNoStore != 0 && hasDirective(cacheControl, "no-store") {
		return true
	}
	if mode&ProxiedPrivate != 0 && hasDirective(cacheControl, "private") {
		return true
	}
	if mode&ProxiedNoLastModified != 0 && h.Get("Last-Modified") == "" {
		return true
	}
	if mode&ProxiedNoETag != 0 && h.Get("ETag") == "" {
		return true
	}
	if mode&ProxiedAuth != 0 && r.Header.Get("Authorization") != "" {
		return true
	}
	return false
}

func hasDirective(cacheControl, directive string) bool {
	for _, part := range strings.Split(cacheControl, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		if name == directive {
			return true
		}
	}
	return false
}

// acceptsGzip reports whether Accept-Encoding allows gzip with a non-zero q.
func acceptsGzip(r *http.Request) bool {
	for _, header := range r.Header.Values("Accept-Encoding") {
		for _, part := range strings.Split(header, ",") {
			coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
			coding = strings.ToLower(strings.TrimSpace(coding))
			if coding != "gzip" && coding != "*" {
				continue
			}
			q := strings.TrimSpace(params)
			if v, ok := strings.CutPrefix(q, "q="); ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil && f == 0 {
					continue
				}
			}
			return true
		}
	}
	return false
}

// compressibleStatus excludes responses that have no body to compress or
// whose body is a byte range of the identity representation.
func compressibleStatus(code int) bool {
	switch {
	case code < 200:
		return false
	case code == http.StatusNoContent, code == http.StatusPartialContent, code == http.StatusNotModified:
		return false
	default:
		return true
	}
}

// gzipResponseWriter buffers the start of a response until it can decide
// whether the policy applies, then either streams through a gzip writer or
// passes the bytes through unchanged.
type gzipResponseWriter struct {
	http.ResponseWriter
	req    *http.Request
	policy *CompressionPolicy
	pools  *compressorPools

	gzipWriter *gzip.Writer
	staging    *bufio.Writer

	buffer         []byte
	statusCode     int
	headerCalled   bool
	decided        bool
	shouldCompress bool
}

// newGzipResponseWriter creates a new gzip response writer
func newGzipResponseWriter(w http.ResponseWriter, r *http.Request, policy *CompressionPolicy, pools *compressorPools) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		req:            r,
		policy:         policy,
		pools:          pools,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code. Informational responses other than
// 101 pass straight through.
func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.headerCalled || g.decided {
		return
	}
	if statusCode >= 100 && statusCode < 200 && statusCode != http.StatusSwitchingProtocols {
		g.ResponseWriter.WriteHeader(statusCode)
		return
	}
	g.headerCalled = true
	g.statusCode = statusCode

	// Bodiless and already-encoded responses can be decided right away
	if !compressibleStatus(statusCode) || g.Header().Get("Content-Encoding") != "" {
		g.decide(false)
	}
}

// Write buffers data until the policy can be evaluated
func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if !g.headerCalled && !g.decided {
		g.WriteHeader(http.StatusOK)
	}

	if g.decided {
		if g.shouldCompress {
			return g.gzipWriter.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) >= g.policy.MinLength {
		if err := g.decide(false); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

// decide evaluates the policy once and flushes the buffered bytes. final is
// true when the handler has finished, so the buffer holds the whole body.
func (g *gzipResponseWriter) decide(final bool) error {
	if g.decided {
		return nil
	}
	g.decided = true

	h := g.Header()
	if h.Get("Content-Type") == "" && len(g.buffer) > 0 {
		h.Set("Content-Type", http.DetectContentType(g.buffer))
	}

	eligible := compressibleStatus(g.statusCode) &&
		h.Get("Content-Encoding") == "" &&
		g.policy.typeEligible(h.Get("Content-Type"))

	if eligible && g.policy.Vary {
		addVary(h, "Accept-Encoding")
	}

	g.shouldCompress = eligible &&
		acceptsGzip(g.req) &&
		g.req.ProtoAtLeast(g.policy.MinHTTPVersion.Major, g.policy.MinHTTPVersion.Minor) &&
		g.policy.proxiedAllowed(g.req, h) &&
		g.lengthAllowed(final)

	outcome := "skipped"
	if g.shouldCompress {
		outcome = "compressed"
	}
	metrics.CompressionResponsesTotal.WithLabelValues(g.policy.Route, outcome).Inc()

	buffered := g.buffer
	g.buffer = nil

	if !g.shouldCompress {
		g.ResponseWriter.WriteHeader(g.statusCode)
		if len(buffered) > 0 {
			_, err := g.ResponseWriter.Write(buffered)
			return err
		}
		return nil
	}

	h.Del("Content-Length")
	h.Del("Accept-Ranges")
	h.Set("Content-Encoding", "gzip")
	if etag := h.Get("ETag"); strings.HasPrefix(etag, `"`) {
		h.Set("ETag", "W/"+etag)
	}

	g.staging = g.pools.staging.Get().(*bufio.Writer)
	g.staging.Reset(g.ResponseWriter)
	g.gzipWriter = g.pools.gzip.Get().(*gzip.Writer)
	g.gzipWriter.Reset(g.staging)

	g.ResponseWriter.WriteHeader(g.statusCode)
	_, err := g.gzipWriter.Write(buffered)
	return err
}

// lengthAllowed applies MinLength using Content-Length when the handler set
// one, otherwise the buffered size once the body is complete. A body of
// unknown length that is still streaming is assumed large enough.
func (g *gzipResponseWriter) lengthAllowed(final bool) bool {
	if cl := g.Header().Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n > 0 && n >= int64(g.policy.MinLength)
		}
	}
	if final {
		return len(g.buffer) > 0 && len(g.buffer) >= g.policy.MinLength
	}
	return true
}

// Close finalizes the response and returns the gzip writer and staging
// buffer to their pools
func (g *gzipResponseWriter) Close() error {
	if !g.decided {
		if !g.headerCalled {
			g.statusCode = http.StatusOK
		}
		if err := g.decide(true); err != nil {
			return err
		}
	}

	if g.gzipWriter == nil {
		return nil
	}

	err := g.gzipWriter.Close()
	if flushErr := g.staging.Flush(); err == nil {
		err = flushErr
	}
	g.gzipWriter.Reset(io.Discard)
	g.pools.gzip.Put(g.gzipWriter)
	g.gzipWriter = nil

	g.staging.Reset(io.Discard)
	g.pools.staging.Put(g.staging)
	g.staging = nil
	return err
}

// Flush implements http.Flusher
func (g *gzipResponseWriter) Flush() {
	if !g.decided {
		_ = g.decide(false)
	}

	if g.gzipWriter != nil {
		_ = g.gzipWriter.Flush()
		_ = g.staging.Flush()
	}

	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func addVary(h http.Header, value string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "*" || strings.EqualFold(part, value) {
				return
			}
		}
	}
	h.Add("Vary", value)
}

// compressorPools recycles the per-response gzip writers and staging
// buffers of one policy. Staging buffers are BufferCount × BufferSize bytes.
type compressorPools struct {
	gzip    sync.Pool
	staging sync.Pool
}

func newCompressorPools(policy CompressionPolicy) *compressorPools {
	size := policy.BufferCount * policy.BufferSize
	return &compressorPools{
		gzip: sync.Pool{
			New: func() interface{} {
				w, err := gzip.NewWriterLevel(io.Discard, policy.Level)
				if err != nil {
					w = gzip.NewWriter(io.Discard)
				}
				return w
			},
		},
		staging: sync.Pool{
			New: func() interface{} {
				return bufio.NewWriterSize(io.Discard, size)
			},
		},
	}
}

// Compression returns a middleware that applies policy to responses
func Compression(policy CompressionPolicy) func(http.Handler) http.Handler {
	pools := newCompressorPools(policy)

	return func(next http.Handler) http.Handler {
		if !policy.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// No body to compress
			if r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			// Skip compression for WebSocket and other protocol upgrades
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, r, &policy, pools)
			defer gzw.Close()

			next.ServeHTTP(gzw, r)
		})
	}
}
