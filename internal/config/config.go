// Package config loads aemetwind settings from the environment, an optional
// YAML file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/provider/resilience"
	"github.com/aemetwind/aemetwind/internal/telemetry"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured.
var ErrMissingAPIKey = errors.New("AEMET_API_KEY is not set")

// Config is the full application configuration.
type Config struct {
	AEMET     AEMET     `yaml:"aemet"`
	Server    Server    `yaml:"server"`
	Download  Download  `yaml:"download"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

// AEMET configures the OpenData client.
type AEMET struct {
	APIKey  string `yaml:"apiKey" env:"AEMET_API_KEY"`
	BaseURL string `yaml:"baseUrl" env:"AEMET_BASE_URL" env-default:"https://opendata.aemet.es/opendata/api" validate:"required,url"`

	// RequestDelay is waited before every daily climate request.
	RequestDelay time.Duration `yaml:"requestDelay" env:"AEMET_REQUEST_DELAY" env-default:"1s" validate:"gte=0"`

	Timeout    time.Duration `yaml:"timeout" env:"AEMET_HTTP_TIMEOUT" env-default:"30s" validate:"gt=0"`
	MaxRetries uint64        `yaml:"maxRetries" env:"AEMET_MAX_RETRIES" env-default:"3" validate:"lte=10"`
	UserAgent  string        `yaml:"userAgent" env:"AEMET_USER_AGENT" env-default:"aemetwind"`

	// BreakerOpenFor is how long AEMET calls are refused after the breaker
	// trips.
	BreakerOpenFor time.Duration `yaml:"breakerOpenFor" env:"AEMET_BREAKER_OPEN_FOR" env-default:"1m" validate:"gt=0"`
}

// Server configures the HTTP API.
type Server struct {
	Port string `yaml:"port" env:"APP_PORT" env-default:"8080" validate:"required,numeric"`
	Env  string `yaml:"env" env:"APP_ENV" env-default:"development" validate:"oneof=development staging production test"`

	// RateLimit is the number of requests per minute allowed per client IP.
	RateLimit int `yaml:"rateLimit" env:"API_RATE_LIMIT" env-default:"60" validate:"gt=0"`

	// WriteTimeout bounds a whole response, including long NDJSON streams.
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"APP_WRITE_TIMEOUT" env-default:"5m" validate:"gt=0"`

	RequireTLS bool `yaml:"requireTls" env:"REQUIRE_TLS" env-default:"false"`
}

// Download configures the multi-station download job.
type Download struct {
	Concurrency int           `yaml:"concurrency" env:"DOWNLOAD_CONCURRENCY" env-default:"1" validate:"gte=1,lte=8"`
	Timeout     time.Duration `yaml:"timeout" env:"DOWNLOAD_STATION_TIMEOUT" env-default:"10m" validate:"gt=0"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Enabled      bool    `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	SampleRatio  float64 `yaml:"sampleRatio" env:"OTEL_TRACES_SAMPLER_ARG" env-default:"1" validate:"gte=0,lte=1"`
}

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn error disabled"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"false"`
}

// Load reads configuration. Variables from dotenv (if the file exists) are
// added to the environment without overriding it. The YAML file at path is
// optional; environment variables take precedence over it.
func Load(path, dotenv string) (Config, error) {
	if dotenv != "" {
		if _, err := os.Stat(dotenv); err == nil {
			if err := godotenv.Load(dotenv); err != nil {
				return Config{}, fmt.Errorf("loading %s: %w", dotenv, err)
			}
		}
	}

	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireAPIKey fails when no AEMET API key is configured.
func (c Config) RequireAPIKey() error {
	if c.AEMET.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Usage writes the supported environment variables to w.
func Usage(w io.Writer) error {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, text)
	return err
}

// ClientConfig builds the resilient HTTP client settings for AEMET.
func (a AEMET) ClientConfig(name string, registry *resilience.Registry, logger zerolog.Logger) resilience.ClientConfig {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Timeout = a.Timeout
	if a.MaxRetries > 0 {
		cfg.MaxRetries = a.MaxRetries
	}
	cfg.UserAgent = a.UserAgent
	cfg.Breaker.OpenFor = a.BreakerOpenFor
	cfg.Registry = registry
	cfg.Logger = logger
	return cfg
}

// TelemetryConfig builds the telemetry settings.
func (c Config) TelemetryConfig(service, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    c.Server.Env,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		Enabled:        c.Telemetry.Enabled,
		SampleRatio:    c.Telemetry.SampleRatio,
	}
}

// NewLogger returns a zerolog logger writing JSON to w, or a console
// rendering when Pretty is set.
func (l Log) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if l.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
