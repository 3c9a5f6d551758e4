// Package router implements the gateway's ordered routing table.
//
// Every request is validated first; malformed targets are answered with 400
// and never forwarded. Rules are then evaluated in order using gorilla/mux
// matchers. A static rule claims a GET or HEAD request only when the path
// resolves to a regular file inside its root, so misses (including any
// attempt to escape the root) fall through to later rules. The final rule
// is always the upstream catch-all.
//
// Static and upstream responses pass through separate compression policies.
package router
