// Package resilience wraps upstream HTTP calls in a circuit breaker with
// retries, and keeps a registry of how each upstream is doing.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig shapes the circuit breaker in front of an upstream. Zero
// fields take the values of DefaultBreakerConfig.
type BreakerConfig struct {
	// OpenFor is how long the breaker rejects calls before probing.
	OpenFor time.Duration

	// Probes is the number of calls let through while half-open.
	Probes uint32

	// ResetEvery clears the counts periodically while closed. Zero keeps
	// them until the breaker trips.
	ResetEvery time.Duration

	ReadyToTrip  func(gobreaker.Counts) bool
	IsSuccessful func(error) bool

	// OnStateChange runs after every transition, after the client has logged
	// it and told the Registry.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig opens for a minute once DefaultReadyToTrip says so,
// then lets a single trial request through.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		OpenFor:      time.Minute,
		Probes:       1,
		ReadyToTrip:  DefaultReadyToTrip,
		IsSuccessful: DefaultIsSuccessful,
	}
}

// DefaultReadyToTrip trips on five failures in a row, or once at least half
// of five or more calls failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	switch {
	case counts.ConsecutiveFailures >= 5:
		return true
	case counts.Requests < 5:
		return false
	}
	return 2*counts.TotalFailures >= counts.Requests
}

// DefaultIsSuccessful does not hold a 429 against the upstream: the service
// answered, the API key is out of quota.
func DefaultIsSuccessful(err error) bool {
	var rl *RateLimitError
	return err == nil || errors.As(err, &rl)
}

func (b BreakerConfig) withDefaults() BreakerConfig {
	def := DefaultBreakerConfig()
	if b.OpenFor <= 0 {
		b.OpenFor = def.OpenFor
	}
	if b.Probes == 0 {
		b.Probes = def.Probes
	}
	if b.ReadyToTrip == nil {
		b.ReadyToTrip = def.ReadyToTrip
	}
	if b.IsSuccessful == nil {
		b.IsSuccessful = def.IsSuccessful
	}
	return b
}

func newBreaker[T any](name string, b BreakerConfig, onChange func(name string, from, to gobreaker.State)) *gobreaker.CircuitBreaker[T] {
	b = b.withDefaults()
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          name,
		MaxRequests:   b.Probes,
		Interval:      b.ResetEvery,
		Timeout:       b.OpenFor,
		ReadyToTrip:   b.ReadyToTrip,
		IsSuccessful:  b.IsSuccessful,
		OnStateChange: onChange,
	})
}
