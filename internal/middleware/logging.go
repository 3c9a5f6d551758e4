package middleware

import (
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"metadb-gateway/internal/remoteaddr"
)

// ResponseWriter wrapper to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	// 1xx responses are interim; the final status is still to come
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		rw.ResponseWriter.WriteHeader(code)
		return
	}
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	// Output receives one line per request; nil disables access logging
	Output     io.Writer
	ServerName string
	SkipPaths  []string
	// DefaultRoute is logged when the router does not record a route kind
	DefaultRoute string
}

// DefaultLoggingConfig returns a sensible default configuration
func DefaultLoggingConfig(output io.Writer) LoggingConfig {
	return LoggingConfig{
		Output:     output,
		ServerName: "metadb-gateway",
		SkipPaths:  []string{},
	}
}

// W3CLogger handles W3C Extended Log Format logging
type W3CLogger struct {
	config     LoggingConfig
	out        *log.Logger
	headerOnce sync.Once
}

// NewW3CLogger creates a new W3C format logger
func NewW3CLogger(config LoggingConfig) *W3CLogger {
	return &W3CLogger{
		config: config,
		out:    log.New(config.Output, "", 0),
	}
}

// w3cFields is the #Fields directive describing each logged line
const w3cFields = "date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken x-route cs-version sc(Content-Encoding) cs(User-Agent) cs(Referer)"

func (l *W3CLogger) writeHeader() {
	l.headerOnce.Do(func() {
		now := time.Now().UTC()
		l.out.Println("#Version: 1.0")
		l.out.Printf("#Software: %s", sanitizeLogField(l.config.ServerName))
		l.out.Printf("#Date: %s", now.Format("2006-01-02 15:04:05"))
		l.out.Printf("#Fields: %s", w3cFields)
	})
}

// sanitizeLogField removes control characters that could be used for log injection.
// This includes newlines, carriage returns, tabs, null bytes, and ANSI escape sequences.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			// Replace newlines/carriage returns with spaces to prevent log line forging
			b.WriteRune(' ')
		case r == '\x00':
			continue
		case r == '\x1b':
			// Strip ANSI escape character to prevent terminal escape injection
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	if config.Output == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	logger := NewW3CLogger(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			r, info := WithRequestInfo(r, config.DefaultRoute)
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			logger.logRequest(r, wrapped, info.Route, time.Since(start))
		})
	}
}

// logRequest logs a request in W3C Extended Log Format
func (l *W3CLogger) logRequest(r *http.Request, rw *responseWriter, route string, duration time.Duration) {
	l.writeHeader()
	now := time.Now().UTC()

	// Sanitize every user-controlled field individually
	clientIP := sanitizeLogField(remoteaddr.IP(r))
	method := sanitizeLogField(r.Method)
	uriStem := escapeW3CField(sanitizeLogField(r.URL.EscapedPath()))

	uriQuery := sanitizeLogField(r.URL.RawQuery)
	if uriQuery == "" {
		uriQuery = "-"
	} else {
		uriQuery = escapeW3CField(uriQuery)
	}

	if route == "" {
		route = "-"
	}

	contentEncoding := rw.Header().Get("Content-Encoding")
	if contentEncoding == "" {
		contentEncoding = "-"
	}

	userAgent := sanitizeLogField(r.Header.Get("User-Agent"))
	if userAgent == "" {
		userAgent = "-"
	} else {
		userAgent = escapeW3CField(userAgent)
	}

	referer := sanitizeLogField(r.Header.Get("Referer"))
	if referer == "" {
		referer = "-"
	} else {
		referer = escapeW3CField(referer)
	}

	l.out.Printf("%s %s %s %s %s %s %d %d %d %s %s %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		clientIP,
		method,
		uriStem,
		uriQuery,
		rw.statusCode,
		rw.bytesWritten,
		duration.Milliseconds(), // W3C uses milliseconds
		route,
		sanitizeLogField(r.Proto),
		contentEncoding,
		userAgent,
		referer,
	)
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// escapeW3CField escapes a field value for W3C log format.
// Values with spaces or quotes are quoted, with inner quotes doubled.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
