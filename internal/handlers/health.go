package handlers

import (
	"net/http"
	"runtime"
	"time"

	"metadb-gateway/internal/startup"
)

const (
	statusHealthy     = "healthy"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
)

// CheckResult is the outcome of one backend probe
type CheckResult struct {
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string        `json:"status"`
	Ready       bool          `json:"ready"`
	Version     string        `json:"version"`
	Uptime      string        `json:"uptime"`
	Upstream    CheckResult   `json:"upstream"`
	StaticRoots []CheckResult `json:"staticRoots"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports the state of the upstream and every static root.
// A missing static root only degrades service since those requests fall
// through to the upstream; an unreachable upstream makes the gateway
// unavailable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		StaticRoots:  make([]CheckResult, 0, len(h.roots)),
	}

	response.Upstream = CheckResult{OK: true}
	if h.upstream != nil {
		response.Upstream.Target = h.upstream.Socket()
	}
	if err := h.PingUpstream(r.Context()); err != nil {
		response.Upstream.OK = false
		response.Upstream.Error = err.Error()
	}

	staticOK := true
	for _, root := range h.roots {
		result := CheckResult{Target: root.Dir(), OK: true}
		if err := root.Check(); err != nil {
			result.OK = false
			result.Error = err.Error()
			staticOK = false
		}
		response.StaticRoots = append(response.StaticRoots, result)
	}

	response.Ready = response.Upstream.OK && staticOK
	switch {
	case !response.Upstream.OK:
		response.Status = statusUnavailable
	case !staticOK:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if !response.Upstream.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the upstream accepts connections and
// every static root is readable
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	err := h.PingUpstream(r.Context())
	if err == nil {
		err = h.CheckStaticRoot()
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSONStatus(w, "ready")
}
