// ABOUTME: Client address resolution for session tracking and login logs
// ABOUTME: Honors X-Real-IP only when running behind a trusted reverse proxy

package auth

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address of the caller. Behind a reverse proxy the
// X-Real-IP header is trusted; otherwise the host part of RemoteAddr is used.
func ClientIP(r *http.Request, reverseProxy bool) string {
	if reverseProxy {
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
