// Package handler provides HTTP handlers for the aemetwind API.
package handler

import (
	"net/http"
	"time"

	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/api/response"
	"github.com/aemetwind/aemetwind/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready while
// the AEMET circuit breaker is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.overallStatus()
	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - upstream provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	status := models.SystemStatus{
		Status:    h.overallStatus(),
		Time:      models.Timestamp(now),
		Providers: []models.ProviderStatus{},
	}
	if h.registry != nil {
		now = h.registry.Now()
		for _, ph := range h.registry.All() {
			status.Providers = append(status.Providers, providerStatus(ph, now))
		}
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) overallStatus() models.HealthStatus {
	if h.registry == nil {
		return models.HealthStatusOK
	}
	return healthStatus(h.registry.Status())
}

func healthStatus(s string) models.HealthStatus {
	switch s {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

func timestamp(t time.Time) *models.Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := models.Timestamp(t)
	return &ts
}

func providerStatus(ph resilience.Health, now time.Time) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:      ph.Name,
		Status:        healthStatus(ph.Status(now)),
		CircuitState:  ph.State.String(),
		StateSince:    timestamp(ph.StateSince),
		Requests:      ph.Counts.Requests,
		Failures:      ph.Counts.ConsecutiveFailures,
		EmptyResults:  ph.Empty,
		Throttled:     ph.Throttled,
		LastSuccessAt: timestamp(ph.LastSuccess),
		LastFailureAt: timestamp(ph.LastFailure),
	}
	if now.Before(ph.ThrottledUntil) {
		ps.ThrottledUntil = timestamp(ph.ThrottledUntil)
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}
