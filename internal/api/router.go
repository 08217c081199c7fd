// Package api provides the HTTP API for aemetwind.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/api/handler"
	"github.com/aemetwind/aemetwind/internal/api/middleware"
	"github.com/aemetwind/aemetwind/internal/api/response"
	"github.com/aemetwind/aemetwind/internal/provider/resilience"
	"github.com/aemetwind/aemetwind/internal/station"
	"github.com/aemetwind/aemetwind/internal/wind"
)

// RouterConfig wires the router to its services.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Registry reports AEMET health on the ops endpoints (optional).
	Registry *resilience.Registry

	Climate        handler.ClimateSource
	WindService    *wind.Service
	StationService *station.Service

	// RequestDelay is waited before every sub-query of a raw climate stream.
	RequestDelay time.Duration

	// RateLimit is the number of requests per minute per IP allowed on
	// endpoints that call AEMET. Zero falls back to middleware.DefaultLimit.
	RateLimit int

	RequireTLS bool
}

// NewRouter mounts the v1 API. Every request gets an ID first so that the
// span, the access log line and any problem body share it. RealIP runs before
// anything that records the client address. Panics are
// recovered inside the logger and metrics so they still see the 500.
func NewRouter(cfg RouterConfig) *chi.Mux {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aemetwind-api"
	}

	stack := []func(http.Handler) http.Handler{
		middleware.RequestID,
		chimiddleware.RealIP,
		middleware.Tracing(serviceName),
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware())
	}
	stack = append(stack,
		middleware.Logger(cfg.Logger),
		middleware.Recovery(cfg.Logger),
		middleware.SecurityHeaders,
		middleware.RequireTLS(cfg.RequireTLS),
	)

	r := chi.NewRouter()
	r.Use(stack...)
	r.NotFound(response.RouteNotFound)
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	climateHandler := handler.NewClimateHandler(cfg.Climate, cfg.RequestDelay)
	windHandler := handler.NewWindHandler(cfg.WindService)
	stationHandler := handler.NewStationHandler(cfg.StationService)

	computeLimit := middleware.RateLimitByIP(middleware.DefaultLimit)
	upstreamLimit := computeLimit
	if cfg.RateLimit > 0 {
		upstreamLimit = middleware.RateLimitByIP(middleware.PerMinute(cfg.RateLimit))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.With(computeLimit).Get("/queries/decompose", climateHandler.Decompose)

		r.Route("/stations", func(r chi.Router) {
			r.Use(upstreamLimit)
			r.Get("/", stationHandler.ListStations)
			r.Get("/metadata", stationHandler.InventoryMetadata)

			r.Route("/{stationId}", func(r chi.Router) {
				r.Get("/climate/daily", climateHandler.DailyClimate)
				r.Get("/climate/daily/metadata", climateHandler.DailyClimateMetadata)
				r.Get("/wind/daily", windHandler.DailyWind)
			})
		})
	})

	return r
}
