package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"metadb-gateway/internal/middleware"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	// Check that all fields are populated
	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}

	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
		setEnv       bool
	}{
		{
			name:         "Returns default when env var not set",
			key:          "TEST_UNSET_VAR",
			defaultValue: "default",
			want:         "default",
		},
		{
			name:         "Returns env value when set",
			key:          "TEST_SET_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
			setEnv:       true,
		},
		{
			name:         "Returns default when env var is empty",
			key:          "TEST_EMPTY_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
			setEnv:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			} else {
				os.Unsetenv(tt.key)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"Unset uses default true", "", true, true},
		{"Unset uses default false", "", false, false},
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"on", "on", false, true},
		{"off", "off", true, false},
		{"OFF uppercase", "OFF", true, false},
		{"Invalid falls back", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}

	t.Setenv("TEST_INT", "forty")
	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt() with invalid value = %d, want default 7", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		envValue string
		want     time.Duration
	}{
		{"", 5 * time.Second},
		{"60", 60 * time.Second},
		{"90s", 90 * time.Second},
		{"1m30s", 90 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"soon", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			if got := getEnvDuration("TEST_DURATION", 5*time.Second); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestParseBuffers(t *testing.T) {
	tests := []struct {
		in        string
		wantCount int
		wantSize  int
		wantErr   bool
	}{
		{"16 8k", 16, 8192, false},
		{"4 4096", 4, 4096, false},
		{"2 1m", 2, 1 << 20, false},
		{"  32   4K ", 32, 4096, false},
		{"16", 0, 0, true},
		{"0 8k", 0, 0, true},
		{"16 0", 0, 0, true},
		{"x 8k", 0, 0, true},
		{"16 8q", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			count, size, err := ParseBuffers(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBuffers(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if count != tt.wantCount || size != tt.wantSize {
				t.Errorf("ParseBuffers(%q) = (%d, %d), want (%d, %d)", tt.in, count, size, tt.wantCount, tt.wantSize)
			}
		})
	}
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "SERVER_NAME", "STATIC_ROOT", "STATIC_PREFIX", "STATIC_TRY_ROOT", "STATIC_MAX_AGE",
		"UPSTREAM_SOCKET", "UPSTREAM_TIMEOUT", "UPSTREAM_CONNECT_TIMEOUT", "UPSTREAM_MAX_IDLE_CONNS",
		"GZIP", "GZIP_HTTP_VERSION", "GZIP_BUFFERS", "GZIP_MIN_LENGTH", "GZIP_COMP_LEVEL",
		"GZIP_PROXIED", "GZIP_VARY", "GZIP_TYPES_STATIC", "GZIP_TYPES_PROXY",
		"ACCESS_LOG", "ERROR_LOG", "ADMIN_ADDR", "METRICS_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearGatewayEnv(t)
	dir := t.TempDir()
	t.Setenv("STATIC_ROOT", dir)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", config.ListenAddr)
	}
	if config.StaticPrefix != "/static" {
		t.Errorf("StaticPrefix = %q, want /static", config.StaticPrefix)
	}
	if config.StaticRoot != dir {
		t.Errorf("StaticRoot = %q, want %q", config.StaticRoot, dir)
	}
	if config.Upstream.Socket != "/tmp/metadb.uwsgi.sock" {
		t.Errorf("Upstream.Socket = %q, want /tmp/metadb.uwsgi.sock", config.Upstream.Socket)
	}
	if config.Upstream.ResponseTimeout != 60*time.Second {
		t.Errorf("Upstream.ResponseTimeout = %v, want 60s", config.Upstream.ResponseTimeout)
	}

	sp := config.StaticCompression
	if !sp.Enabled || sp.BufferCount != 16 || sp.BufferSize != 8192 || sp.MinLength != 20 || sp.Level != 6 {
		t.Errorf("unexpected static compression defaults: %+v", sp)
	}
	if sp.MinHTTPVersion != (middleware.HTTPVersion{Major: 1, Minor: 0}) {
		t.Errorf("MinHTTPVersion = %v, want 1.0", sp.MinHTTPVersion)
	}
	if sp.Proxied != middleware.ProxiedAny || !sp.Vary {
		t.Errorf("Proxied = %v, Vary = %v, want any and true", sp.Proxied, sp.Vary)
	}

	hasHTML := func(types []string) bool {
		for _, typ := range types {
			if typ == "text/html" {
				return true
			}
		}
		return false
	}
	if hasHTML(config.StaticCompression.EligibleTypes) {
		t.Error("static policy should not list text/html")
	}
	if !hasHTML(config.ProxyCompression.EligibleTypes) {
		t.Error("proxy policy should list text/html")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("STATIC_ROOT", t.TempDir())
	t.Setenv("UPSTREAM_SOCKET", "/run/metadb/app.sock")
	t.Setenv("UPSTREAM_TIMEOUT", "30")
	t.Setenv("UPSTREAM_CONNECT_TIMEOUT", "2s")
	t.Setenv("GZIP_BUFFERS", "4 16k")
	t.Setenv("GZIP_COMP_LEVEL", "9")
	t.Setenv("GZIP_HTTP_VERSION", "1.1")
	t.Setenv("GZIP_PROXIED", "no-cache no-store")
	t.Setenv("GZIP_TYPES_STATIC", "text/css, image/svg+xml")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Upstream.Socket != "/run/metadb/app.sock" {
		t.Errorf("Upstream.Socket = %q", config.Upstream.Socket)
	}
	if config.Upstream.ResponseTimeout != 30*time.Second || config.Upstream.ConnectTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v, want 30s/2s", config.Upstream.ResponseTimeout, config.Upstream.ConnectTimeout)
	}

	for _, p := range []middleware.CompressionPolicy{config.StaticCompression, config.ProxyCompression} {
		if p.BufferCount != 4 || p.BufferSize != 16384 || p.Level != 9 {
			t.Errorf("unexpected policy knobs: %+v", p)
		}
		if p.MinHTTPVersion != (middleware.HTTPVersion{Major: 1, Minor: 1}) {
			t.Errorf("MinHTTPVersion = %v, want 1.1", p.MinHTTPVersion)
		}
		if p.Proxied != middleware.ProxiedNoCache|middleware.ProxiedNoStore {
			t.Errorf("Proxied = %v, want no-cache|no-store", p.Proxied)
		}
	}

	types := config.StaticCompression.EligibleTypes
	if len(types) != 2 || types[0] != "text/css" || types[1] != "image/svg+xml" {
		t.Errorf("static types = %v", types)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Bad HTTP version", "GZIP_HTTP_VERSION", "one"},
		{"Bad buffers", "GZIP_BUFFERS", "sixteen"},
		{"Bad proxied", "GZIP_PROXIED", "off any"},
		{"Level out of range", "GZIP_COMP_LEVEL", "12"},
		{"Relative prefix", "STATIC_PREFIX", "static"},
		{"Negative idle conns", "UPSTREAM_MAX_IDLE_CONNS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv("STATIC_ROOT", t.TempDir())
			t.Setenv(tt.key, tt.value)

			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%q succeeded, want error", tt.key, tt.value)
			}
		})
	}
}

func TestLoadConfigMissingStaticRoot(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("STATIC_ROOT", filepath.Join(t.TempDir(), "missing"))

	// A missing root is a warning; everything is proxied until it appears
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
}

func TestOpenAccessLog(t *testing.T) {
	w, c, err := OpenAccessLog("off")
	if err != nil || w != nil {
		t.Errorf("OpenAccessLog(off) = %v, %v; want nil writer", w, err)
	}
	c.Close()

	w, c, err = OpenAccessLog("-")
	if err != nil || w != os.Stdout {
		t.Errorf("OpenAccessLog(-) = %v, %v; want stdout", w, err)
	}
	c.Close()

	path := filepath.Join(t.TempDir(), "access.log")
	w, c, err = OpenAccessLog(path)
	if err != nil {
		t.Fatalf("OpenAccessLog(file) error = %v", err)
	}
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "line\n" {
		t.Errorf("access log contents = %q, %v", data, err)
	}

	if _, _, err := OpenAccessLog(filepath.Join(t.TempDir(), "no", "such", "dir", "log")); err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	r.HandleFunc("/metrics", noop).Methods(http.MethodGet).Name("metrics")
	r.MatcherFunc(func(*http.Request, *mux.RouteMatch) bool { return true }).Handler(noop).Name("upstream:/")
	r.MatcherFunc(func(*http.Request, *mux.RouteMatch) bool { return true }).Handler(noop)

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("GetRoutes() returned %d routes, want 2: %+v", len(routes), routes)
	}
	if routes[0].Method != http.MethodGet || routes[0].Path != "/metrics" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if routes[1].Method != "*" || routes[1].Path != "upstream:/" {
		t.Errorf("routes[1] = %+v", routes[1])
	}
}

func TestDisplayAddr(t *testing.T) {
	if got := displayAddr(":8080"); got != "0.0.0.0:8080" {
		t.Errorf("displayAddr(:8080) = %q", got)
	}
	if got := displayAddr("127.0.0.1:9090"); got != "127.0.0.1:9090" {
		t.Errorf("displayAddr(127.0.0.1:9090) = %q", got)
	}
}
