package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/aemetwind/aemetwind/internal/aemet"
	"github.com/aemetwind/aemetwind/internal/config"
	"github.com/aemetwind/aemetwind/internal/provider/resilience"
	"github.com/aemetwind/aemetwind/internal/telemetry"
)

// app holds what the root Before hook builds for the subcommands.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	registry *resilience.Registry
	client   *aemet.Client
	tp       *telemetry.Provider
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env-file"))
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("api-key") {
		cfg.AEMET.APIKey = cmd.String("api-key")
	}
	if cmd.IsSet("base-url") {
		cfg.AEMET.BaseURL = cmd.String("base-url")
	}
	if cmd.IsSet("delay") {
		cfg.AEMET.RequestDelay = cmd.Duration("delay")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.Bool("log-pretty") {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}

	a.cfg = cfg
	a.log = cfg.Log.NewLogger(stderr(cmd)).
		With().
		Str("service", serviceName).
		Logger()

	a.tp, err = telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version))
	if err != nil {
		return ctx, fmt.Errorf("initializing telemetry: %w", err)
	}

	a.registry = resilience.NewRegistry()
	a.client = aemet.NewClient(aemet.ClientConfig{
		APIKey:     cfg.AEMET.APIKey,
		BaseURL:    cfg.AEMET.BaseURL,
		HTTPClient: resilience.NewClient(cfg.AEMET.ClientConfig(aemet.ProviderName, a.registry, a.log)),
		Registry:   a.registry,
		Logger:     a.log,
	})

	return a.log.WithContext(ctx), nil
}

func (a *app) after(_ context.Context, _ *cli.Command) error {
	if a.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tp.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
	return nil
}

// requireKey fails commands that talk to AEMET when no key is configured.
func (a *app) requireKey() error {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return fmt.Errorf("%w (use --api-key, the environment or a .env file)", err)
	}
	return nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// openOutput returns the --output file, or stdout when it is empty or "-".
func openOutput(cmd *cli.Command) (io.Writer, func() error, error) {
	path := cmd.String("output")
	if path == "" || path == "-" {
		return stdout(cmd), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output: %w", err)
	}
	return f, f.Close, nil
}
