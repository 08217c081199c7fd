package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Overall status values reported by Registry.Status and Health.Status.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is a snapshot of one upstream. Zero times mean "never".
type Health struct {
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	// StateSince is the time of the last breaker transition, or of
	// registration.
	StateSince time.Time

	LastSuccess time.Time
	LastFailure time.Time
	LastError   string

	// Empty counts answers that were valid but matched no records.
	Empty uint64

	// Throttled counts quota rejections. ThrottledUntil is when the most
	// recent one said to come back.
	Throttled      uint64
	ThrottledUntil time.Time
}

// Status classifies h at now: an open breaker is unhealthy, a half-open
// breaker or an unexpired throttle is degraded.
func (h Health) Status(now time.Time) string {
	switch {
	case h.State == gobreaker.StateOpen:
		return StatusUnhealthy
	case h.State == gobreaker.StateHalfOpen, now.Before(h.ThrottledUntil):
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Registry tracks the upstream clients of the process and the outcome of
// the calls made through them.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*upstream
	now       func() time.Time
}

type upstream struct {
	client     *Client
	stateSince time.Time

	lastSuccess    time.Time
	lastFailure    time.Time
	lastError      string
	empty          uint64
	throttled      uint64
	throttledUntil time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		upstreams: make(map[string]*upstream),
		now:       time.Now,
	}
}

// Register adds client under name, replacing any previous one.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreams[name] = &upstream{client: client, stateSince: r.now()}
}

// update applies fn to the named upstream. Unknown names are ignored.
func (r *Registry) update(name string, fn func(u *upstream, now time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		fn(u, r.now())
	}
}

// Success records a call that returned data.
func (r *Registry) Success(name string) {
	r.update(name, func(u *upstream, now time.Time) {
		u.lastSuccess = now
	})
}

// Empty records a valid answer with no matching records.
func (r *Registry) Empty(name string) {
	r.update(name, func(u *upstream, now time.Time) {
		u.lastSuccess = now
		u.empty++
	})
}

// Throttled records a quota rejection. retryAfter may be zero.
func (r *Registry) Throttled(name string, retryAfter time.Duration) {
	r.update(name, func(u *upstream, now time.Time) {
		u.throttled++
		if until := now.Add(retryAfter); until.After(u.throttledUntil) {
			u.throttledUntil = until
		}
	})
}

// Failure records a failed call.
func (r *Registry) Failure(name string, err error) {
	r.update(name, func(u *upstream, now time.Time) {
		u.lastFailure = now
		if err != nil {
			u.lastError = err.Error()
		}
	})
}

func (r *Registry) stateChanged(name string) {
	r.update(name, func(u *upstream, now time.Time) {
		u.stateSince = now
	})
}

// health reads the breaker of u. It must be called without r.mu held:
// reading the state can fire a transition, which calls back into the
// registry.
func (u upstream) health(name string) Health {
	return Health{
		Name:           name,
		State:          u.client.CircuitBreakerState(),
		Counts:         u.client.CircuitBreakerCounts(),
		StateSince:     u.stateSince,
		LastSuccess:    u.lastSuccess,
		LastFailure:    u.lastFailure,
		LastError:      u.lastError,
		Empty:          u.empty,
		Throttled:      u.throttled,
		ThrottledUntil: u.throttledUntil,
	}
}

// Health returns the snapshot of the named upstream.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	u, ok := r.upstreams[name]
	var cp upstream
	if ok {
		cp = *u
	}
	r.mu.RUnlock()

	if !ok {
		return Health{}, false
	}
	return cp.health(name), true
}

// All returns a snapshot of every upstream, sorted by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	names := make([]string, 0, len(r.upstreams))
	copies := make(map[string]upstream, len(r.upstreams))
	for name, u := range r.upstreams {
		names = append(names, name)
		copies[name] = *u
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]Health, 0, len(names))
	for _, name := range names {
		out = append(out, copies[name].health(name))
	}
	return out
}

// Status is the worst Health.Status of all upstreams, healthy when none is
// registered.
func (r *Registry) Status() string {
	now := r.Now()
	status := StatusHealthy
	for _, h := range r.All() {
		switch h.Status(now) {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}

// SetClock replaces the registry clock. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
