package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"metadb-gateway/internal/startup"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	h := &Handlers{}

	req := httptest.NewRequest(http.MethodGet, "/version", http.NoBody)
	w := httptest.NewRecorder()

	h.GetVersion(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Expected Cache-Control: no-cache, got %q", cc)
	}

	var response startup.BuildInfo
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	want := startup.GetBuildInfo()
	if response != want {
		t.Errorf("GetVersion() = %+v, want %+v", response, want)
	}
}

func TestGetVersionReportsUpstream(t *testing.T) {
	t.Parallel()

	h := New(&mockUpstream{})

	req := httptest.NewRequest(http.MethodGet, "/version", http.NoBody)
	w := httptest.NewRecorder()
	h.GetVersion(w, req)

	var response VersionResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.UpstreamSocket != "/tmp/test.sock" {
		t.Errorf("Expected upstream socket /tmp/test.sock, got %q", response.UpstreamSocket)
	}
	if response.Version != startup.Version {
		t.Errorf("Expected version %q, got %q", startup.Version, response.Version)
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	h := &Handlers{}

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	h.MetricsHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "metadb_gateway_") {
		t.Error("Expected gateway metrics in output")
	}
}
