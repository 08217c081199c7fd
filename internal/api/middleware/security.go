package middleware

import (
	"net/http"
	"strings"

	"github.com/aemetwind/aemetwind/internal/api/models"
)

// securityHeaders suit an API that only serves JSON and NDJSON.
var securityHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
}

// SecurityHeaders sets browser hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS answers 403 to requests that a proxy received over plain
// HTTP. Requests that did not pass a proxy are let through.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proto := forwardedProto(r); proto != "" && proto != "https" {
				writeProblem(w, r, newProblem(r, models.KindTLSRequired, "This endpoint requires HTTPS"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedProto returns the scheme seen by the outermost proxy.
func forwardedProto(r *http.Request) string {
	v := r.Header.Get("X-Forwarded-Proto")
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
