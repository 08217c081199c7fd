// Package aemet is a client for the AEMET OpenData REST API.
//
// Every AEMET endpoint answers with a small JSON envelope that points at the
// real payload. The client resolves the envelope, then fetches the datos (or
// metadatos) URL it names.
package aemet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/aemetwind/aemetwind/internal/provider/resilience"
)

const (
	// ProviderName identifies AEMET in the provider registry.
	ProviderName = "aemet"

	// DefaultBaseURL is the AEMET OpenData API base URL.
	DefaultBaseURL = "https://opendata.aemet.es/opendata/api"

	instrumentationName = "github.com/aemetwind/aemetwind/internal/aemet"

	stageEnvelope = "envelope"
	stagePayload  = "payload"
)

// ClientConfig configures NewClient. Only APIKey is required for real
// traffic; without it every request fails with ErrMissingAPIKey.
type ClientConfig struct {
	APIKey string

	// BaseURL defaults to DefaultBaseURL. Tests point it at a fake server.
	BaseURL string

	// HTTPClient carries retries and the circuit breaker. Nil builds one
	// from resilience.DefaultClientConfig.
	HTTPClient *resilience.Client

	// Registry, when set, hears about every envelope and payload outcome.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client talks to AEMET OpenData. It is safe for concurrent use.
type Client struct {
	apiKey    string
	baseURL   string
	transport *resilience.Client
	registry  *resilience.Registry
	logger    zerolog.Logger
	tracer    trace.Tracer
	metrics   *clientMetrics
}

// NewClient builds a client and registers its transport with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(ProviderName, httpClient)
	}

	metrics, err := newClientMetrics()
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("aemet metrics disabled")
	}

	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		transport: httpClient,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		tracer:    otel.Tracer(instrumentationName),
		metrics:   metrics,
	}
}

// Name is the key the client reports under in the registry.
func (c *Client) Name() string {
	return ProviderName
}

// BaseURL returns the API base URL in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a decoded AEMET envelope.
type Response struct {
	Description string `json:"descripcion"`
	Status      int    `json:"estado"`
	DataURL     string `json:"datos"`
	MetadataURL string `json:"metadatos"`
}

// GetResponse requests url and decodes the envelope it returns. An envelope
// whose estado is not 200 is reported as *APIError. AEMET sends envelopes on
// error HTTP statuses too, so the body is decoded before the status is judged.
func (c *Client) GetResponse(ctx context.Context, url string) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var envelope Response
	err := c.observe(ctx, stageEnvelope, func(ctx context.Context) error {
		resp, err := c.get(ctx, url, "application/json")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := readBody(resp)
		if err != nil {
			return fmt.Errorf("read envelope: %w", err)
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			if resp.StatusCode != http.StatusOK {
				return &StatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter(resp)}
			}
			return fmt.Errorf("decode envelope: %w", err)
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("aemet.estado", envelope.Status))

		if envelope.Status == http.StatusOK {
			return nil
		}
		apiErr := &APIError{Description: envelope.Description, Status: envelope.Status}
		if envelope.Status == http.StatusTooManyRequests {
			apiErr.RetryAfter = retryAfter(resp)
		}
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return &envelope, nil
}

// FetchPayload GETs a datos or metadatos URL and decodes its JSON body into v.
func (c *Client) FetchPayload(ctx context.Context, url string, v any) error {
	return c.observe(ctx, stagePayload, func(ctx context.Context) error {
		resp, err := c.get(ctx, url, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &StatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter(resp)}
		}
		body, err := readBody(resp)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return nil
	})
}

// observe runs one stage of the two-step fetch inside a client span and
// reports its outcome to the metrics and the registry.
func (c *Client) observe(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "aemet."+stage,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("aemet.stage", stage)),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	c.metrics.record(ctx, stage, time.Since(start), err)
	c.report(err)

	if err != nil && !IsNoData(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.transport.Do(req)
}

// Data resolves the envelope at url and decodes its datos payload into v.
func (c *Client) Data(ctx context.Context, url string, v any) error {
	envelope, err := c.GetResponse(ctx, url)
	if err != nil {
		return err
	}
	if envelope.DataURL == "" {
		return ErrMissingDataURL
	}
	return c.FetchPayload(ctx, envelope.DataURL, v)
}

// Metadata resolves the envelope at url and decodes its metadatos payload.
func (c *Client) Metadata(ctx context.Context, url string) (*Metadata, error) {
	envelope, err := c.GetResponse(ctx, url)
	if err != nil {
		return nil, err
	}
	if envelope.MetadataURL == "" {
		return nil, ErrMissingMetadataURL
	}

	var md Metadata
	if err := c.FetchPayload(ctx, envelope.MetadataURL, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

func (c *Client) report(err error) {
	if c.registry == nil {
		return
	}
	if err == nil {
		c.registry.Success(ProviderName)
		return
	}
	if IsNoData(err) {
		c.registry.Empty(ProviderName)
		return
	}
	if d, ok := Throttled(err); ok {
		c.registry.Throttled(ProviderName, d)
		return
	}
	c.registry.Failure(ProviderName, err)
}

func retryAfter(resp *http.Response) time.Duration {
	d, _ := resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	return d
}

// readBody reads the response body and transcodes it to UTF-8 according to
// the charset in Content-Type. AEMET serves payloads as ISO-8859-15.
func readBody(resp *http.Response) ([]byte, error) {
	enc := bodyEncoding(resp.Header.Get("Content-Type"))
	var r io.Reader = resp.Body
	if enc != nil {
		r = enc.NewDecoder().Reader(resp.Body)
	}
	return io.ReadAll(r)
}

// bodyEncoding returns nil for UTF-8 or when no charset is declared.
func bodyEncoding(contentType string) encoding.Encoding {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	switch charset {
	case "", "utf-8", "utf8":
		return nil
	case "iso-8859-15", "latin9", "latin-9":
		return charmap.ISO8859_15
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return charmap.ISO8859_15
	}
	return enc
}
