package aemet

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// NoDataDescription is the envelope description AEMET returns when a valid
// query matches no records.
const NoDataDescription = "No hay datos que satisfagan esos criterios"

var (
	// ErrMissingAPIKey is returned when a request is attempted without an API key.
	ErrMissingAPIKey = errors.New("aemet: missing api key")

	// ErrMissingDataURL is returned when a successful envelope has no datos URL.
	ErrMissingDataURL = errors.New("aemet: envelope has no data url")

	// ErrMissingMetadataURL is returned when a successful envelope has no metadatos URL.
	ErrMissingMetadataURL = errors.New("aemet: envelope has no metadata url")
)

// APIError is an envelope whose estado is not 200.
type APIError struct {
	Description string
	Status      int

	// RetryAfter is set from the Retry-After header when Status is 429.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aemet api error %d: %s", e.Status, e.Description)
}

// IsNoData reports whether the error is the "no records match" response.
func (e *APIError) IsNoData() bool {
	return e.Description == NoDataDescription
}

// StatusError is a non-200 HTTP response that carried no envelope.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// IsNoData reports whether err wraps an *APIError signalling an empty result.
func IsNoData(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNoData()
}

// Throttled reports whether err is AEMET rejecting a request because the
// quota of the API key is used up, and how long it asked to wait.
func Throttled(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return apiErr.RetryAfter, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return statusErr.RetryAfter, true
	}
	return 0, false
}
