package models

// HealthStatus is the status reported by the ops endpoints.
type HealthStatus string

const (
	HealthStatusOK HealthStatus = "OK"
	// HealthStatusDegraded: AEMET is throttling the API key or the breaker
	// is probing.
	HealthStatusDegraded HealthStatus = "DEGRADED"
	// HealthStatusFail: the breaker is open and no request reaches AEMET.
	HealthStatusFail HealthStatus = "FAIL"
)

// Health is the body of the liveness and readiness checks.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the body of GET /v1/ops/status.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Providers []ProviderStatus `json:"providers"`
}

// ProviderStatus is the state of an upstream as seen by this process.
type ProviderStatus struct {
	Provider     string       `json:"provider"`
	Status       HealthStatus `json:"status"`
	CircuitState string       `json:"circuitState"`
	StateSince   *Timestamp   `json:"stateSince,omitempty"`
	Requests     uint32       `json:"requests"`
	Failures     uint32       `json:"consecutiveFailures"`

	// EmptyResults counts queries AEMET answered with "no data".
	EmptyResults uint64 `json:"emptyResults"`

	// Throttled counts quota rejections; ThrottledUntil is set while the
	// last one is in force.
	Throttled      uint64     `json:"throttled"`
	ThrottledUntil *Timestamp `json:"throttledUntil,omitempty"`

	LastSuccessAt *Timestamp `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp `json:"lastFailureAt,omitempty"`
	Message       *string    `json:"message,omitempty"`
}
