package aemet

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcomes of one stage of a fetch, as recorded on aemet.request.duration.
const (
	outcomeOK        = "ok"
	outcomeNoData    = "no_data"
	outcomeThrottled = "throttled"
	outcomeError     = "error"
)

type clientMetrics struct {
	duration metric.Float64Histogram
	noData   metric.Int64Counter
}

// newClientMetrics registers the client instruments on the global meter. If
// registration fails the client still works, with no-op instruments.
func newClientMetrics() (*clientMetrics, error) {
	meter := otel.Meter(instrumentationName)

	duration, errDuration := meter.Float64Histogram("aemet.request.duration",
		metric.WithDescription("Time spent on one AEMET OpenData request, envelope or payload"),
		metric.WithUnit("s"),
	)
	noData, errNoData := meter.Int64Counter("aemet.no_data",
		metric.WithDescription("Queries AEMET answered with no matching records"),
		metric.WithUnit("{query}"),
	)
	if err := errors.Join(errDuration, errNoData); err != nil {
		return &clientMetrics{duration: noop.Float64Histogram{}, noData: noop.Int64Counter{}}, err
	}
	return &clientMetrics{duration: duration, noData: noData}, nil
}

func (m *clientMetrics) record(ctx context.Context, stage string, d time.Duration, err error) {
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("aemet.stage", stage),
		attribute.String("aemet.outcome", outcome(err)),
	))
}

func (m *clientMetrics) recordNoData(ctx context.Context, stationID string) {
	m.noData.Add(ctx, 1, metric.WithAttributes(attribute.String("aemet.station_id", stationID)))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsNoData(err):
		return outcomeNoData
	}
	if _, ok := Throttled(err); ok {
		return outcomeThrottled
	}
	return outcomeError
}
