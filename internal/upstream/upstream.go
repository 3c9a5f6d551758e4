package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"metadb-gateway/internal/logging"
	"metadb-gateway/internal/metrics"
	"metadb-gateway/internal/remoteaddr"
)

// RemoteAddrHeader carries the client IP to the application server. Any
// client-supplied value is discarded before the gateway sets its own.
const RemoteAddrHeader = "X-MB-Remote-Addr"

// StatusClientClosedRequest is recorded when the client goes away before
// the upstream answers. It never reaches the client.
const StatusClientClosedRequest = 499

var (
	// ErrUnavailable means the upstream could not be reached or returned an
	// unusable response.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrTimeout means the upstream did not respond in time.
	ErrTimeout = errors.New("upstream timed out")
	// ErrClientClosed means the client canceled the request mid-flight.
	ErrClientClosed = errors.New("client closed request")
)

// Config describes how to reach the application server.
type Config struct {
	// Socket is the path of the Unix domain socket the server listens on
	Socket string
	// ConnectTimeout bounds establishing a connection
	ConnectTimeout time.Duration
	// ResponseTimeout bounds the wait for response headers once the request
	// has been written
	ResponseTimeout time.Duration
	// MaxIdleConns is the number of idle connections kept for reuse
	MaxIdleConns int
}

// DefaultConfig returns the default upstream settings.
func DefaultConfig() Config {
	return Config{
		Socket:          "/tmp/metadb.uwsgi.sock",
		ConnectTimeout:  5 * time.Second,
		ResponseTimeout: 60 * time.Second,
		MaxIdleConns:    16,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Socket) == "" {
		return fmt.Errorf("upstream socket path required")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("upstream connect timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.ResponseTimeout)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("upstream max idle connections must not be negative, got %d", c.MaxIdleConns)
	}
	return nil
}

// Forwarder relays requests to the application server over its Unix socket.
// It is safe for concurrent use; connections are pooled by the transport.
type Forwarder struct {
	cfg       Config
	dialer    *net.Dialer
	transport *http.Transport
	proxy     *httputil.ReverseProxy
}

// New creates a Forwarder. The socket does not need to exist yet.
func New(cfg Config) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Forwarder{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.ConnectTimeout},
	}

	f.transport = &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return f.dialer.DialContext(ctx, "unix", cfg.Socket)
		},
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
		ExpectContinueTimeout: time.Second,
		// Bodies are relayed as the application encoded them
		DisableCompression: true,
	}

	// The dialer ignores the address, the host only fills the request line
	target := &url.URL{Scheme: "http", Host: "upstream"}

	f.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()

			// Header.Del only removes the canonical key
			for name := range pr.Out.Header {
				if strings.EqualFold(name, RemoteAddrHeader) {
					delete(pr.Out.Header, name)
				}
			}
			pr.Out.Header.Set(RemoteAddrHeader, remoteaddr.IP(pr.In))
		},
		Transport: f.transport,
		ModifyResponse: func(resp *http.Response) error {
			metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			return nil
		},
		ErrorHandler: f.handleError,
		ErrorLog:     logging.NewStdLogger(logging.LevelWarn),
	}

	return f, nil
}

// Socket returns the upstream socket path.
func (f *Forwarder) Socket() string {
	return f.cfg.Socket
}

// ServeHTTP forwards r and relays the upstream response unchanged. Failures
// are answered with 502 or 504; nothing is retried.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	}()

	f.proxy.ServeHTTP(w, r)
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	classified, kind := Classify(err)
	metrics.UpstreamErrorsTotal.WithLabelValues(kind).Inc()

	status := StatusFor(classified)
	if status == StatusClientClosedRequest {
		logging.Debug("Client closed request %s %s before upstream responded", r.Method, r.URL.Path)
		w.WriteHeader(status)
		return
	}

	logging.Error("Upstream %s for %s %s: %v", kind, r.Method, r.URL.Path, err)
	http.Error(w, http.StatusText(status), status)
}

// Ping checks that the upstream socket accepts connections.
func (f *Forwarder) Ping(ctx context.Context) error {
	conn, err := f.dialer.DialContext(ctx, "unix", f.cfg.Socket)
	if err != nil {
		classified, _ := Classify(err)
		return classified
	}
	return conn.Close()
}

// Close releases idle upstream connections.
func (f *Forwarder) Close() {
	f.transport.CloseIdleConnections()
}

// Classify maps a transport error onto ErrUnavailable, ErrTimeout or
// ErrClientClosed, wrapping the cause. kind is the metrics label.
func Classify(err error) (classified error, kind string) {
	if err == nil {
		return nil, ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrClientClosed, err), "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err), "timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err), "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		// ECONNREFUSED (nobody listening) and ENOENT (socket file missing)
		// both land here
		return fmt.Errorf("%w: %v", ErrUnavailable, err), "unavailable"
	}

	// Connection reset, malformed response and the like
	return fmt.Errorf("%w: %v", ErrUnavailable, err), "other"
}

// StatusFor maps a classified error to the HTTP status returned to the client.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrClientClosed):
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}
