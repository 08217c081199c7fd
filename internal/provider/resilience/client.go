package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without a request while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when every attempt failed at the
	// transport level.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ClientConfig holds configuration for the upstream HTTP client.
type ClientConfig struct {
	// Name identifies the upstream in the breaker, logs and the Registry.
	Name string

	// Timeout bounds a single attempt.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the number of attempts after the first one.
	// Default: 3
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff.
	// Defaults: 500ms and 10 seconds
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// RetryTooManyRequests retries 429 responses. AEMET answers 429 once
	// the per-minute quota of the API key is used up.
	RetryTooManyRequests bool

	// MaxRetryAfter caps the wait a Retry-After header can impose on a
	// retry. Longer values fall back to the regular backoff.
	// Default: 60 seconds
	MaxRetryAfter time.Duration

	// UserAgent is sent on every request when set.
	UserAgent string

	Breaker BreakerConfig

	// Registry, when set, registers the client under Name.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for AEMET OpenData.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:                 name,
		Timeout:              30 * time.Second,
		MaxRetries:           3,
		InitialInterval:      500 * time.Millisecond,
		MaxInterval:          10 * time.Second,
		RetryTooManyRequests: true,
		MaxRetryAfter:        time.Minute,
		Breaker:              DefaultBreakerConfig(),
		Logger:               zerolog.Nop(),
	}
}

// Client sends requests through a circuit breaker and retries transient
// failures: transport errors, 5xx and, when enabled, 429.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

// NewClient creates a client, filling zero fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig(cfg.Name)
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxRetryAfter == 0 {
		cfg.MaxRetryAfter = def.MaxRetryAfter
	}

	client := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
	//nolint:bodyclose // type parameter, not a response
	client.circuitBreaker = newBreaker[*http.Response](cfg.Name, cfg.Breaker, func(name string, from, to gobreaker.State) {
		cfg.Logger.Warn().
			Str("upstream", name).
			Stringer("from", from).
			Stringer("to", to).
			Msg("circuit breaker state changed")
		if cfg.Registry != nil {
			cfg.Registry.stateChanged(cfg.Name)
		}
		if hook := cfg.Breaker.OnStateChange; hook != nil {
			hook(name, from, to)
		}
	})
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, client)
	}
	return client
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do sends req with the context it carries.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext sends req, retrying transient failures with exponential
// backoff. A Retry-After header on a 429 stretches the next wait up to
// MaxRetryAfter. When retries run out on a 5xx or 429, that last response
// is returned without error so the caller can read its body. ErrCircuitOpen
// is returned immediately while the breaker is open.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.config.InitialInterval
	exp.MaxInterval = c.config.MaxInterval
	exp.MaxElapsedTime = 0

	wait := &retryAfterBackOff{BackOff: exp, max: c.config.MaxRetryAfter}
	policy := backoff.WithContext(backoff.WithMaxRetries(wait, c.config.MaxRetries), ctx)

	var last *http.Response
	keep := func(r *http.Response) {
		if last != nil && last != r {
			drain(last)
		}
		last = r
	}

	attempt := 0
	operation := func() error {
		attempt++
		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			out := req.Clone(ctx)
			if c.config.UserAgent != "" {
				out.Header.Set("User-Agent", c.config.UserAgent)
			}
			r, err := c.httpClient.Do(out)
			if err != nil {
				return nil, withoutQuery(err)
			}

			switch {
			case r.StatusCode >= 500:
				return r, &ServerError{StatusCode: r.StatusCode}
			case r.StatusCode == http.StatusTooManyRequests && c.config.RetryTooManyRequests:
				d, _ := ParseRetryAfter(r.Header.Get("Retry-After"), time.Now())
				return r, &RateLimitError{RetryAfter: d}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			var rl *RateLimitError
			if errors.As(err, &rl) {
				wait.next = rl.RetryAfter
			}
			if resp != nil {
				keep(resp)
			}
			return err
		}

		keep(resp)
		return nil
	}

	notify := func(err error, d time.Duration) {
		c.config.Logger.Debug().
			Err(err).
			Str("upstream", c.config.Name).
			Str("url", stripQuery(req.URL)).
			Int("attempt", attempt).
			Dur("wait", d).
			Msg("retrying request")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil {
		if last != nil && !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
			return last, nil
		}
		if last != nil {
			drain(last)
		}
		if ctx.Err() == nil && !errors.Is(err, ErrCircuitOpen) {
			return nil, errors.Join(ErrMaxRetriesExceeded, err)
		}
		return nil, err
	}
	return last, nil
}

// stripQuery drops the query string, where upstreams such as AEMET expect
// the API key.
func stripQuery(u *url.URL) string {
	c := *u
	c.RawQuery, c.ForceQuery, c.User = "", false, nil
	return c.String()
}

func withoutQuery(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	if u, perr := url.Parse(uerr.URL); perr == nil {
		uerr.URL = stripQuery(u)
	}
	return err
}

// retryAfterBackOff waits at least the server's Retry-After before the
// next attempt, when one was given and is no longer than max.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
	max  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d != backoff.Stop && b.next > d && b.next <= b.max {
		d = b.next
	}
	b.next = 0
	return d
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, r.Body)
	_ = r.Body.Close()
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date. It reports false for a missing or unparsable value.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d.Round(time.Second), true
	}
	return 0, true
}

// ServerError is an HTTP 5xx answer.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// RateLimitError is an HTTP 429 answer. RetryAfter is zero when the server
// did not say.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return "rate limited, retry after " + e.RetryAfter.String()
	}
	return "rate limited"
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the breaker counters of the current window.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
