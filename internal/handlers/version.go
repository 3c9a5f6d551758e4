package handlers

import (
	"net/http"

	"metadb-gateway/internal/startup"
)

// VersionResponse is the build information plus the gateway's view of its
// upstream.
type VersionResponse struct {
	startup.BuildInfo
	UpstreamSocket string `json:"upstreamSocket,omitempty"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	response := VersionResponse{BuildInfo: startup.GetBuildInfo()}
	if h.upstream != nil {
		response.UpstreamSocket = h.upstream.Socket()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, response)
}
