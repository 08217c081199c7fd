package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger logs one line per request once it is served. Handlers get a child
// logger through zerolog.Ctx that already carries the request and trace IDs,
// so a chunk warning deep in the climate collector can be tied to its
// request.
//
// Server errors log at error level and client errors at warn. Ops endpoints
// log at debug so that health checks do not drown the access log.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fields := log.With().Str("request_id", GetRequestID(r.Context()))
			spanCtx := trace.SpanContextFromContext(r.Context())
			if spanCtx.IsValid() {
				fields = fields.Str("trace_id", spanCtx.TraceID().String())
			}
			reqLog := fields.Logger()

			rec := capture(w)
			next.ServeHTTP(rec, r.WithContext(reqLog.WithContext(r.Context())))

			event := reqLog.WithLevel(accessLevel(r, rec.status()))
			if spanCtx.IsValid() {
				event = event.Str("span_id", spanCtx.SpanID().String())
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", rec.status()).
				Int64("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}

func accessLevel(r *http.Request, status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	case strings.HasPrefix(r.URL.Path, "/v1/ops/"):
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
