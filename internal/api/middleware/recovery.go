package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aemetwind/aemetwind/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. A panic after the
// status line went out, typically mid NDJSON stream, can only be logged and
// the client sees a truncated body. http.ErrAbortHandler is re-raised so the
// server can drop the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := capture(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				reportPanic(log, r, v, cw.committed())
				if !cw.committed() {
					writeProblem(w, r, newProblem(r, models.KindInternal, "an unexpected error occurred"))
				}
			}()
			next.ServeHTTP(cw, r)
		})
	}
}

func reportPanic(log zerolog.Logger, r *http.Request, v any, committed bool) {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", v)
	}

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetStatus(codes.Error, "panic")

	log.Error().
		Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Bool("response_started", committed).
		Bytes("stack", debug.Stack()).
		Msg("panic recovered")
}
