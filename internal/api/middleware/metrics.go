package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Metrics records the HTTP server instruments.
type Metrics struct {
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	size     metric.Int64Histogram
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFromMeter(otel.Meter(instrumentationName))
}

// NewMetricsFromMeter registers the instruments on meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err, e error

	m.duration, e = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests, including streamed bodies"),
		metric.WithUnit("s"))
	err = errors.Join(err, e)

	m.active, e = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Requests being served"),
		metric.WithUnit("{request}"))
	err = errors.Join(err, e)

	m.size, e = meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of response bodies"),
		metric.WithUnit("By"))
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Middleware records every request under its chi route pattern rather than
// its path, so station IDs do not create new series.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			method := semconv.HTTPRequestMethodKey.String(r.Method)

			m.active.Add(ctx, 1, metric.WithAttributes(method))
			defer m.active.Add(ctx, -1, metric.WithAttributes(method))

			rec := capture(w)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			kv := []attribute.KeyValue{
				method,
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(rec.status()),
			}
			// Server errors are named by status code, as OpenTelemetry does.
			if rec.status() >= http.StatusInternalServerError {
				kv = append(kv, attribute.String("error.type", strconv.Itoa(rec.status())))
			}
			attrs := metric.WithAttributes(kv...)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.size.Record(ctx, rec.bytes, attrs)
		})
	}
}
