package worker

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type jobMetrics struct {
	stations     metric.Int64Counter
	observations metric.Int64Counter
	malformed    metric.Int64Counter
	duration     metric.Float64Histogram
}

func newJobMetrics(meter metric.Meter) (*jobMetrics, error) {
	stations, err1 := meter.Int64Counter("worker.stations",
		metric.WithDescription("Stations processed by bulk downloads"),
		metric.WithUnit("{station}"))
	observations, err2 := meter.Int64Counter("worker.observations",
		metric.WithDescription("Wind observations downloaded"),
		metric.WithUnit("{observation}"))
	malformed, err3 := meter.Int64Counter("worker.malformed_records",
		metric.WithDescription("Daily records skipped because a wind field did not parse"),
		metric.WithUnit("{record}"))
	duration, err4 := meter.Float64Histogram("worker.station.duration",
		metric.WithDescription("Time to download one station"),
		metric.WithUnit("s"))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return &jobMetrics{
			stations:     noop.Int64Counter{},
			observations: noop.Int64Counter{},
			malformed:    noop.Int64Counter{},
			duration:     noop.Float64Histogram{},
		}, err
	}
	return &jobMetrics{stations: stations, observations: observations, malformed: malformed, duration: duration}, nil
}

func (m *jobMetrics) record(ctx context.Context, r StationResult) {
	outcome := "ok"
	if r.Err != nil {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(attribute.String("worker.outcome", outcome))

	m.stations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, r.Duration.Seconds(), attrs)
	m.observations.Add(ctx, int64(len(r.Observations)))
	m.malformed.Add(ctx, int64(r.Malformed))
}
