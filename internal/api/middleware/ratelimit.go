package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/aemetwind/aemetwind/internal/api/models"
)

// Limit is a request budget per client IP.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimit guards endpoints that never reach AEMET.
var DefaultLimit = Limit{Requests: 100, Window: time.Minute}

// PerMinute allows n requests a minute. Routes that call AEMET use it
// with the quota of the API key, so a single client cannot spend it all.
func PerMinute(n int) Limit {
	return Limit{Requests: n, Window: time.Minute}
}

// RateLimitByIP rejects a client that went over l with a 429 problem.
// httprate does not expose when the window resets, so Retry-After is the
// whole window.
func RateLimitByIP(l Limit) func(http.Handler) http.Handler {
	return httprate.Limit(
		l.Requests,
		l.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			detail := fmt.Sprintf("more than %d requests in %s from this address", l.Requests, l.Window)
			writeProblem(w, r, newProblem(r, models.KindTooManyRequests, detail).WithRetryAfter(l.Window))
		}),
	)
}
