package governance

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey derives the rate-limit identity of a request.
//
// X-Forwarded-For is client controlled, so it is only honoured when
// trustForwarded is set, i.e. when the gateway runs behind a reverse proxy
// that overwrites the header. In that case the left-most entry is used.
// Otherwise the socket peer address is used.
func ClientKey(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}

// RouteKey is the canonical rate-limit route of a request. Handlers match
// actions case-insensitively, so paths that differ only in letter case or a
// trailing slash share one counter and one policy.
func RouteKey(r *http.Request) string {
	return CanonicalRoute(r.URL.Path)
}

// CanonicalRoute lowercases path and drops a trailing slash.
func CanonicalRoute(path string) string {
	path = strings.ToLower(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
