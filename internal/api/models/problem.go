package models

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId"`

	// Errors lists invalid query parameters.
	Errors []FieldError `json:"errors,omitempty"`

	// Upstream describes the AEMET answer behind a 4xx/5xx that was not
	// the caller's fault.
	Upstream *Upstream `json:"upstream,omitempty"`

	// RetryAfter, in seconds, is also sent as the Retry-After header.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// FieldError is a validation error on one query parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Upstream is the part of an AEMET error worth showing to a client.
type Upstream struct {
	Provider    string `json:"provider"`
	Status      int    `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
}

// Problem types are URNs; there is no documentation site to link to.
const (
	ProblemTypeValidation       = "urn:aemetwind:problem:validation-error"
	ProblemTypeNotFound         = "urn:aemetwind:problem:not-found"
	ProblemTypeMethodNotAllowed = "urn:aemetwind:problem:method-not-allowed"
	ProblemTypeTooManyRequests  = "urn:aemetwind:problem:too-many-requests"
	ProblemTypeInternal         = "urn:aemetwind:problem:internal-error"
	ProblemTypeBadGateway       = "urn:aemetwind:problem:upstream-error"
	ProblemTypeUnavailable      = "urn:aemetwind:problem:service-unavailable"
	ProblemTypeTLSRequired      = "urn:aemetwind:problem:tls-required"
)

// Kind selects the type, title and status of a Problem.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindTooManyRequests
	KindInternal
	KindBadGateway
	KindUnavailable
	KindTLSRequired
	KindMethodNotAllowed
)

var kinds = [...]struct {
	typ    string
	title  string
	status int
}{
	KindValidation:       {ProblemTypeValidation, "Validation error", http.StatusBadRequest},
	KindNotFound:         {ProblemTypeNotFound, "Not found", http.StatusNotFound},
	KindTooManyRequests:  {ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
	KindInternal:         {ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
	KindBadGateway:       {ProblemTypeBadGateway, "Upstream error", http.StatusBadGateway},
	KindUnavailable:      {ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	KindTLSRequired:      {ProblemTypeTLSRequired, "TLS required", http.StatusForbidden},
	KindMethodNotAllowed: {ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed},
}

// NewProblem creates a problem of the given kind. An unknown kind is
// reported as an internal error.
func NewProblem(kind Kind, traceID, detail string) *Problem {
	if kind < 0 || int(kind) >= len(kinds) {
		kind = KindInternal
	}
	k := kinds[kind]
	return &Problem{
		Type:    k.typ,
		Title:   k.title,
		Status:  k.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithErrors attaches parameter errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// WithUpstream attaches the upstream answer.
func (p *Problem) WithUpstream(u *Upstream) *Problem {
	p.Upstream = u
	return p
}

// WithRetryAfter sets RetryAfter, rounding d up to whole seconds. Zero or
// negative durations leave it unset.
func (p *Problem) WithRetryAfter(d time.Duration) *Problem {
	if d > 0 {
		p.RetryAfter = int(math.Ceil(d.Seconds()))
	}
	return p
}

// Write sends p with its status, the request ID and, when set, Retry-After.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	if p.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(p.RetryAfter))
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
