// Package response writes JSON bodies, NDJSON streams and RFC 7807
// problems, always echoing the request ID.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/api/middleware"
	"github.com/aemetwind/aemetwind/internal/api/models"
)

// JSON writes data with status. A nil data writes no body. Data that does
// not encode is logged and answered with a 500 problem instead.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var body []byte
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("encode response body")
			Error(w, r, Problem(r, models.KindInternal, "response could not be encoded"))
			return
		}
		body = append(b, '\n')
	}
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if _, err := w.Write(body); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("write response body")
		}
	}
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// Problem starts a problem of the given kind for r.
func Problem(r *http.Request, kind models.Kind, detail string) *models.Problem {
	p := models.NewProblem(kind, middleware.GetRequestID(r.Context()), detail)
	p.Instance = r.URL.Path
	return p
}

// Error writes p, taking the instance from r when p has none.
func Error(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	if p.Instance == "" {
		p.Instance = r.URL.Path
	}
	p.Write(w)
}

// BadRequest answers 400 with the offending parameters.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	Error(w, r, Problem(r, models.KindValidation, detail).WithErrors(errs))
}

// NotFound answers 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, Problem(r, models.KindNotFound, detail))
}

// TooManyRequests answers 429. A positive retryAfter is sent as
// Retry-After in whole seconds, rounded up.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	Error(w, r, Problem(r, models.KindTooManyRequests, detail).WithRetryAfter(retryAfter))
}

// InternalError answers 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, Problem(r, models.KindInternal, detail))
}

// BadGateway answers 502 for an AEMET failure. upstream may be nil.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string, upstream *models.Upstream) {
	Error(w, r, Problem(r, models.KindBadGateway, detail).WithUpstream(upstream))
}

// ServiceUnavailable answers 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, Problem(r, models.KindUnavailable, detail))
}

// RouteNotFound is the router fallback for unknown paths.
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	NotFound(w, r, "no route for "+r.URL.Path)
}

// MethodNotAllowed is the router fallback for known paths with another
// method. The API is read-only.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	Error(w, r, Problem(r, models.KindMethodNotAllowed, r.Method+" is not allowed, use GET"))
}
