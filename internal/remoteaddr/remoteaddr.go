// Package remoteaddr extracts the connecting peer address from a request.
//
// Only the transport-level address is trusted. Headers such as
// X-Forwarded-For or X-MB-Remote-Addr supplied by the client are ignored.
package remoteaddr

import (
	"net"
	"net/http"
	"strings"
)

// IP returns the IP of the peer that opened the connection carrying r.
// Unix-socket listeners report "@" or an empty address; both map to "-".
func IP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" || addr == "@" {
		return "-"
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// No port: already a bare host
		return strings.Trim(addr, "[]")
	}
	return host
}
