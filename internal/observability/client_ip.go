package observability

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of RemoteAddr. Proxy headers are only honored
// when the router installs chi's RealIP, which rewrites RemoteAddr upstream.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
