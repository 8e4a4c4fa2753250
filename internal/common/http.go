package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address, preferring the proxy headers the
// reverse proxy in front of the API sets. Rate-limit keys depend on this.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		// First entry is the originating client; the rest are proxies.
		if candidate := strings.TrimSpace(strings.Split(ip, ",")[0]); candidate != "" {
			return candidate
		}
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
