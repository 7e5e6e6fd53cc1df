// Package security holds the browser-facing access checks of the server.
package security

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker validates WebSocket and CORS origins. Requests without an
// Origin header come from non-browser clients and are always allowed, as are
// loopback origins. Anything else must match the allow list.
type OriginChecker struct {
	allowedOrigins []string
}

// NewOriginChecker creates a new origin checker. Entries are exact origins
// such as "https://app.example.com" or wildcard hosts such as
// "*.example.com".
func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	return &OriginChecker{allowedOrigins: allowedOrigins}
}

// CheckOrigin reports whether the request's origin is allowed. It has the
// signature websocket.Upgrader expects.
func (oc *OriginChecker) CheckOrigin(r *http.Request) bool {
	return oc.Allowed(r.Header.Get("Origin"))
}

// Allowed reports whether origin is allowed.
func (oc *OriginChecker) Allowed(origin string) bool {
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if isLocalhost(parsed.Hostname()) {
		return true
	}

	for _, allowed := range oc.allowedOrigins {
		if matchOrigin(parsed, origin, allowed) {
			return true
		}
	}
	return false
}

// isLocalhost checks if a host is a loopback name. Desktop shells serve
// their UI from origins like tauri://localhost or http://tauri.localhost.
func isLocalhost(host string) bool {
	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasSuffix(host, ".localhost")
}

// matchOrigin supports exact matches and wildcard subdomains (*.example.com).
func matchOrigin(parsed *url.URL, origin, allowed string) bool {
	if origin == allowed {
		return true
	}
	if !strings.HasPrefix(allowed, "*.") {
		return false
	}

	domain := allowed[1:] // ".example.com"
	host := parsed.Hostname()
	return strings.HasSuffix(host, domain) || host == domain[1:]
}
