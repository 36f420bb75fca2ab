// Package cors negotiates cross-origin access for the gateway endpoints.
package cors

import (
	"net/http"
	"strings"
)

const (
	defaultMethods = "GET, POST, OPTIONS"
	defaultHeaders = "content-type, x-qn-signature"
)

// Negotiator decides which Access-Control-* headers a response carries.
type Negotiator struct {
	allowAll bool
	allowed  map[string]struct{}
	methods  string
	headers  string
}

// Option customises a Negotiator.
type Option func(*Negotiator)

// WithMethods overrides Access-Control-Allow-Methods.
func WithMethods(methods ...string) Option {
	return func(n *Negotiator) { n.methods = strings.Join(methods, ", ") }
}

// WithHeaders overrides Access-Control-Allow-Headers.
func WithHeaders(headers ...string) Option {
	return func(n *Negotiator) { n.headers = strings.Join(headers, ", ") }
}

// New builds a Negotiator from a list of origins. An empty list or an entry
// of "*" allows every origin.
func New(origins []string, opts ...Option) *Negotiator {
	n := &Negotiator{
		allowed: make(map[string]struct{}),
		methods: defaultMethods,
		headers: defaultHeaders,
	}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
			continue
		case "*":
			n.allowAll = true
		default:
			n.allowed[o] = struct{}{}
		}
	}
	if len(n.allowed) == 0 {
		n.allowAll = true
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ParseOrigins splits a comma-separated origin list such as the ADMIN_ORIGIN value.
func ParseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin.
//
// A present origin that is allowed (explicitly or through the wildcard) is
// echoed back so credentialed browser requests work. Anything else gets "*",
// which is what server-to-server callers without cookies need.
func (n *Negotiator) AllowOrigin(origin string) string {
	if origin != "" {
		if n.allowAll {
			return origin
		}
		if _, ok := n.allowed[origin]; ok {
			return origin
		}
	}
	return "*"
}

// Negotiate writes the CORS headers for a request carrying origin.
func (n *Negotiator) Negotiate(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", n.AllowOrigin(origin))
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", n.methods)
	h.Set("Access-Control-Allow-Headers", n.headers)
}

// IsPreflight reports whether method is a CORS preflight.
func IsPreflight(method string) bool {
	return method == http.MethodOptions
}

// Middleware sets CORS headers on every response and answers preflight
// requests with 204 before any later handler (rate limiting, signature
// checks) runs.
func (n *Negotiator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Negotiate(w.Header(), r.Header.Get("Origin"))
		if IsPreflight(r.Method) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
