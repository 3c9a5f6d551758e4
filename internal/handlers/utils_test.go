package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"Simple map", map[string]string{"status": "ok"}, `{"status":"ok"}`},
		{"Check result", CheckResult{Target: "/tmp/s.sock", OK: true}, `{"target":"/tmp/s.sock","ok":true}`},
		{"Null", nil, `null`},
		{"Empty slice", []CheckResult{}, `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.input)

			body := w.Body.String()
			// Trim newline that json.Encoder adds
			body = body[:len(body)-1]

			if body != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, body)
			}
		})
	}
}

func TestWriteJSONHandlesInvalidTypes(t *testing.T) {
	t.Parallel()

	// Channels cannot be encoded; the error is logged, not panicked
	w := httptest.NewRecorder()
	writeJSON(w, make(chan int))

	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
}

func TestWriteJSONStatus(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeJSONStatus(w, "ready")

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if result["status"] != "ready" {
		t.Errorf("Expected status 'ready', got %q", result["status"])
	}
}
