// Package main runs the aemetwind HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/aemetwind/aemetwind/internal/aemet"
	"github.com/aemetwind/aemetwind/internal/api"
	"github.com/aemetwind/aemetwind/internal/api/middleware"
	"github.com/aemetwind/aemetwind/internal/config"
	"github.com/aemetwind/aemetwind/internal/provider/resilience"
	"github.com/aemetwind/aemetwind/internal/station"
	"github.com/aemetwind/aemetwind/internal/telemetry"
	"github.com/aemetwind/aemetwind/internal/wind"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName  = "aemetwind-api"
	drainTimeout = 30 * time.Second
	flushTimeout = 5 * time.Second
	readTimeout  = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:    serviceName,
		Usage:   "HTTP API over AEMET OpenData daily climate and wind records",
		Version: Version + " (built " + BuildTime + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file loaded when present", Value: ".env"},
		},
		Action: serve,
	}
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, serviceName+":", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env-file"))
	if err != nil {
		_ = config.Usage(os.Stderr)
		return fmt.Errorf("load configuration: %w", err)
	}

	log := cfg.Log.NewLogger(os.Stdout).With().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
	log.Info().Str("build_time", BuildTime).Str("env", cfg.Server.Env).Msg("starting aemetwind API")

	if err := cfg.RequireAPIKey(); err != nil {
		log.Warn().Err(err).Msg("AEMET requests will fail until an API key is configured")
	}

	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer flushTelemetry(log, tp)
	if tp.Enabled() {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("exporting traces and metrics")
	}

	handler, err := newHandler(cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  idleTimeout,
	}

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		listenErr <- server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("drain_timeout", drainTimeout).Msg("shutting down server")
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// newHandler assembles the AEMET client, the services on top of it and the
// router.
func newHandler(cfg config.Config, log zerolog.Logger) (http.Handler, error) {
	metrics, err := middleware.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	registry := resilience.NewRegistry()
	client := aemet.NewClient(aemet.ClientConfig{
		APIKey:     cfg.AEMET.APIKey,
		BaseURL:    cfg.AEMET.BaseURL,
		HTTPClient: resilience.NewClient(cfg.AEMET.ClientConfig(aemet.ProviderName, registry, log)),
		Registry:   registry,
		Logger:     log,
	})
	log.Info().Str("base_url", client.BaseURL()).Msg("aemet client ready")

	return api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Registry:    registry,
		Climate:     client,
		WindService: wind.NewService(wind.ServiceConfig{
			Fetcher: client,
			Delay:   cfg.AEMET.RequestDelay,
			Logger:  log,
		}),
		StationService: station.NewService(station.ServiceConfig{
			Provider: client,
			Logger:   log,
		}),
		RequestDelay: cfg.AEMET.RequestDelay,
		RateLimit:    cfg.Server.RateLimit,
		RequireTLS:   cfg.Server.RequireTLS,
	}), nil
}

func flushTelemetry(log zerolog.Logger, tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("flush telemetry")
	}
}
