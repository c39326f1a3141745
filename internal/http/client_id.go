package httpx

import (
	"net"
	"net/http"
	"strings"
)

// ClientID identifies the submitter for rate limiting. Deployments put the
// gateway behind a proxy, so the first X-Forwarded-For hop wins; a direct
// connection falls back to the peer address without its port.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
