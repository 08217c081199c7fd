package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// captureWriter records what a handler sent: the first status code and the
// number of body bytes. It unwraps for http.ResponseController, which the
// NDJSON stream uses to flush.
type captureWriter struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func capture(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w}
}

func (cw *captureWriter) WriteHeader(code int) {
	if cw.code == 0 {
		cw.code = code
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.code == 0 {
		cw.code = http.StatusOK
	}
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += int64(n)
	return n, err
}

func (cw *captureWriter) Unwrap() http.ResponseWriter { return cw.ResponseWriter }

// committed reports whether the status line has gone out.
func (cw *captureWriter) committed() bool { return cw.code != 0 }

// status is the code sent, or 200 for a handler that wrote nothing.
func (cw *captureWriter) status() int {
	if cw.code == 0 {
		return http.StatusOK
	}
	return cw.code
}

// routePattern is the chi pattern that matched r, for example
// /v1/stations/{stationId}/wind/daily. Empty until routing finishes and for
// unmatched requests.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
