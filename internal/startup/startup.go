package startup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/term"

	"metadb-gateway/internal/logging"
	"metadb-gateway/internal/middleware"
	"metadb-gateway/internal/upstream"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all gateway configuration. It is loaded once at startup and
// not modified afterwards.
type Config struct {
	ListenAddr string
	ServerName string

	StaticRoot    string
	StaticPrefix  string
	StaticTryRoot bool
	StaticMaxAge  time.Duration

	Upstream upstream.Config

	StaticCompression middleware.CompressionPolicy
	ProxyCompression  middleware.CompressionPolicy

	AccessLog string
	ErrorLog  string

	AdminAddr      string
	MetricsEnabled bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		ServerName:     getEnv("SERVER_NAME", "metadb"),
		StaticRoot:     getEnv("STATIC_ROOT", "./static"),
		StaticPrefix:   getEnv("STATIC_PREFIX", "/static"),
		StaticTryRoot:  getEnvBool("STATIC_TRY_ROOT", false),
		StaticMaxAge:   getEnvDuration("STATIC_MAX_AGE", 0),
		AccessLog:      getEnv("ACCESS_LOG", "-"),
		ErrorLog:       getEnv("ERROR_LOG", "-"),
		AdminAddr:      getEnv("ADMIN_ADDR", "127.0.0.1:9090"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	defaults := upstream.DefaultConfig()
	config.Upstream = upstream.Config{
		Socket:          getEnv("UPSTREAM_SOCKET", defaults.Socket),
		ConnectTimeout:  getEnvDuration("UPSTREAM_CONNECT_TIMEOUT", defaults.ConnectTimeout),
		ResponseTimeout: getEnvDuration("UPSTREAM_TIMEOUT", defaults.ResponseTimeout),
		MaxIdleConns:    getEnvInt("UPSTREAM_MAX_IDLE_CONNS", defaults.MaxIdleConns),
	}

	logging.Info("  LISTEN_ADDR:              %s", config.ListenAddr)
	logging.Info("  SERVER_NAME:              %s", config.ServerName)
	logging.Info("  STATIC_ROOT:              %s", config.StaticRoot)
	logging.Info("  STATIC_PREFIX:            %s", config.StaticPrefix)
	logging.Info("  STATIC_TRY_ROOT:          %v", config.StaticTryRoot)
	logging.Info("  STATIC_MAX_AGE:           %s", config.StaticMaxAge)
	logging.Info("  UPSTREAM_SOCKET:          %s", config.Upstream.Socket)
	logging.Info("  UPSTREAM_TIMEOUT:         %s", config.Upstream.ResponseTimeout)
	logging.Info("  UPSTREAM_CONNECT_TIMEOUT: %s", config.Upstream.ConnectTimeout)
	logging.Info("  UPSTREAM_MAX_IDLE_CONNS:  %d", config.Upstream.MaxIdleConns)
	logging.Info("  ACCESS_LOG:               %s", config.AccessLog)
	logging.Info("  ERROR_LOG:                %s", config.ErrorLog)
	logging.Info("  ADMIN_ADDR:               %s", config.AdminAddr)
	logging.Info("  METRICS_ENABLED:          %v", config.MetricsEnabled)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())

	var err error
	config.StaticCompression, config.ProxyCompression, err = loadCompression()
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(config.StaticPrefix, "/") {
		return nil, fmt.Errorf("STATIC_PREFIX %q must start with /", config.StaticPrefix)
	}
	if err := config.Upstream.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upstream configuration: %w", err)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	config.StaticRoot, err = filepath.Abs(config.StaticRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve static root path: %w", err)
	}
	logging.Info("  Static root (absolute): %s", config.StaticRoot)

	// A missing root only means every static lookup falls through
	if err := checkDirectory(config.StaticRoot); err != nil {
		logging.Warn("  Static root issue: %v", err)
		logging.Warn("  All requests will be proxied until it is available")
	}

	if _, err := os.Stat(config.Upstream.Socket); err != nil {
		logging.Warn("  Upstream socket %s not present yet: %v", config.Upstream.Socket, err)
	} else {
		logging.Info("  [OK] Upstream socket exists")
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Compression: %s", enabledString(config.StaticCompression.Enabled))
	logging.Info("    Try root:    %s", enabledString(config.StaticTryRoot))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// loadCompression builds the static and proxy compression policies from
// the GZIP_* variables. Both share every knob except the eligible types.
func loadCompression() (staticPolicy, proxyPolicy middleware.CompressionPolicy, err error) {
	staticPolicy = middleware.DefaultStaticCompressionPolicy()
	proxyPolicy = middleware.DefaultProxyCompressionPolicy()

	enabled := getEnvBool("GZIP", true)
	versionStr := getEnv("GZIP_HTTP_VERSION", "1.0")
	buffersStr := getEnv("GZIP_BUFFERS", "16 8k")
	minLength := getEnvInt("GZIP_MIN_LENGTH", staticPolicy.MinLength)
	level := getEnvInt("GZIP_COMP_LEVEL", staticPolicy.Level)
	proxiedStr := getEnv("GZIP_PROXIED", "any")
	vary := getEnvBool("GZIP_VARY", true)

	logging.Info("  GZIP:                     %v", enabled)
	logging.Info("  GZIP_HTTP_VERSION:        %s", versionStr)
	logging.Info("  GZIP_BUFFERS:             %s", buffersStr)
	logging.Info("  GZIP_MIN_LENGTH:          %d", minLength)
	logging.Info("  GZIP_COMP_LEVEL:          %d", level)
	logging.Info("  GZIP_PROXIED:             %s", proxiedStr)
	logging.Info("  GZIP_VARY:                %v", vary)

	version, err := middleware.ParseHTTPVersion(versionStr)
	if err != nil {
		return staticPolicy, proxyPolicy, fmt.Errorf("GZIP_HTTP_VERSION: %w", err)
	}
	count, size, err := ParseBuffers(buffersStr)
	if err != nil {
		return staticPolicy, proxyPolicy, fmt.Errorf("GZIP_BUFFERS: %w", err)
	}
	proxied, err := middleware.ParseProxiedMode(proxiedStr)
	if err != nil {
		return staticPolicy, proxyPolicy, fmt.Errorf("GZIP_PROXIED: %w", err)
	}

	for _, p := range []*middleware.CompressionPolicy{&staticPolicy, &proxyPolicy} {
		p.Enabled = enabled
		p.MinHTTPVersion = version
		p.BufferCount = count
		p.BufferSize = size
		p.MinLength = minLength
		p.Level = level
		p.Proxied = proxied
		p.Vary = vary
	}

	if types := getEnv("GZIP_TYPES_STATIC", ""); types != "" {
		staticPolicy.EligibleTypes = parseList(types)
	}
	if types := getEnv("GZIP_TYPES_PROXY", ""); types != "" {
		proxyPolicy.EligibleTypes = parseList(types)
	}
	logging.Debug("  Static gzip types: %s", strings.Join(staticPolicy.EligibleTypes, " "))
	logging.Debug("  Proxy gzip types:  %s", strings.Join(proxyPolicy.EligibleTypes, " "))

	if err := staticPolicy.Validate(); err != nil {
		return staticPolicy, proxyPolicy, fmt.Errorf("invalid static compression policy: %w", err)
	}
	if err := proxyPolicy.Validate(); err != nil {
		return staticPolicy, proxyPolicy, fmt.Errorf("invalid proxy compression policy: %w", err)
	}
	return staticPolicy, proxyPolicy, nil
}

// ParseBuffers parses a buffer specification such as "16 8k" into a count
// and a per-buffer size in bytes. Sizes accept k and m suffixes.
func ParseBuffers(s string) (count, size int, err error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected \"<count> <size>\", got %q", s)
	}
	count, err = strconv.Atoi(fields[0])
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("invalid buffer count %q", fields[0])
	}
	size, err = ParseSize(fields[1])
	if err != nil || size <= 0 {
		return 0, 0, fmt.Errorf("invalid buffer size %q", fields[1])
	}
	return count, size, nil
}

// ParseSize parses a byte count with an optional k or m suffix.
func ParseSize(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	multiplier := 1
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

func parseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

// OpenAccessLog resolves the ACCESS_LOG target: "-" is stdout, "off" or ""
// disables access logging (nil writer), anything else is a file opened for
// appending. The closer must be called on shutdown.
func OpenAccessLog(target string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "", "off":
		return nil, nopCloser{}, nil
	case "-":
		return os.Stdout, nopCloser{}, nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open access log %s: %w", target, err)
	}
	return f, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// GetRoutes extracts all registered routes from a mux.Router. Routes
// without a path template (matcher-based rules) are listed by name.
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		name := route.GetName()

		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			if name == "" {
				return nil
			}
			pathTemplate = name
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the routing table of each named router
func LogHTTPRoutes(routers map[string]*mux.Router, accessLog string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	for _, label := range []string{"main", "admin"} {
		router, ok := routers[label]
		if !ok {
			continue
		}
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking %s routes: %v", label, err)
		}

		logging.Info("  [%s] %d rules, evaluated in order:", label, len(routes))
		for _, route := range routes {
			logging.Info("    %-6s %s", route.Method, route.Path)
		}
	}

	logging.Info("")
	if accessLog == "off" || accessLog == "" {
		logging.Info("  Access logging: OFF")
	} else {
		logging.Info("  Access logging: ON (%s)", accessLog)
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	ListenAddr      string
	AdminAddr       string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Gateway:       http://%s", displayAddr(config.ListenAddr))
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://%s/metrics", displayAddr(config.AdminAddr))
		logging.Info("    Health:        http://%s/healthz", displayAddr(config.AdminAddr))
	} else {
		logging.Info("    Admin:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// displayAddr fills in a host for listen addresses like ":8080"
func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}
	return addr
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// Helper functions

func printBanner() {
	// Skip the art when output goes to a file or a log collector
	if term.IsTerminal(int(os.Stdout.Fd())) {
		banner := `
------------------------------------------------------------
                    _        _ _
   _ __ ___   ___| |_ __ _  __| | |__
  | '_ ` + "`" + ` _ \ / _ \ __/ _` + "`" + ` |/ _` + "`" + ` | '_ \
  | | | | | |  __/ || (_| | (_| | |_) |
  |_| |_| |_|\___|\__\__,_|\__,_|_.__/   gateway

------------------------------------------------------------`
		fmt.Println(banner)
	}
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func checkDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	if logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			logging.Debug("    Contents: %d entries (top level)", len(entries))
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "on":
		return true
	case "off":
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("60")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration value for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
