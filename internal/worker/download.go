package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aemetwind/aemetwind/internal/climate"
	"github.com/aemetwind/aemetwind/internal/telemetry"
	"github.com/aemetwind/aemetwind/internal/wind"
)

const instrumentationName = "github.com/aemetwind/aemetwind/internal/worker"

// DownloadJob downloads the daily wind observations of several stations.
type DownloadJob struct {
	config  DownloadConfig
	logger  zerolog.Logger
	wind    *wind.Service
	metrics *jobMetrics
}

// DownloadJobConfig wires a DownloadJob.
type DownloadJobConfig struct {
	Config  DownloadConfig
	Fetcher climate.Fetcher
	Logger  zerolog.Logger

	// Meter receives the worker.* instruments. Nil uses the global meter.
	Meter metric.Meter
}

// NewDownloadJob prepares a download. Nothing is fetched until Run.
func NewDownloadJob(cfg DownloadJobConfig) *DownloadJob {
	config := cfg.Config.withDefaults()

	meter := cfg.Meter
	if meter == nil {
		meter = telemetry.Meter(instrumentationName)
	}
	metrics, err := newJobMetrics(meter)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("download metrics disabled")
	}

	return &DownloadJob{
		config: config,
		logger: cfg.Logger,
		wind: wind.NewService(wind.ServiceConfig{
			Fetcher: cfg.Fetcher,
			Delay:   config.Delay,
			Logger:  cfg.Logger,
		}),
		metrics: metrics,
	}
}

// StationResult is the outcome of one station download.
type StationResult struct {
	StationID    string
	Observations []wind.Observation
	Malformed    int
	Duration     time.Duration
	Err          error
}

// DownloadResult contains the result of a download run. Stations keeps the
// order of DownloadConfig.Stations.
type DownloadResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Stations   []StationResult
	Successful int
	Failed     int
}

// Observations returns every downloaded observation, station by station.
func (r *DownloadResult) Observations() []wind.Observation {
	var out []wind.Observation
	for _, s := range r.Stations {
		out = append(out, s.Observations...)
	}
	return out
}

// Errors returns the failures keyed by station.
func (r *DownloadResult) Errors() map[string]error {
	errs := make(map[string]error)
	for _, s := range r.Stations {
		if s.Err != nil {
			errs[s.StationID] = s.Err
		}
	}
	return errs
}

// Err joins every station failure, or returns nil.
func (r *DownloadResult) Err() error {
	var errs []error
	for _, s := range r.Stations {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Run downloads every configured station.
func (j *DownloadJob) Run(ctx context.Context) *DownloadResult {
	ctx, span := telemetry.Tracer(instrumentationName).Start(ctx, "worker.download")
	defer span.End()

	startTime := time.Now()
	result := &DownloadResult{
		StartTime: startTime,
		Stations:  make([]StationResult, len(j.config.Stations)),
	}

	j.logger.Info().
		Int("stations", len(j.config.Stations)).
		Str("start", j.config.Start.String()).
		Str("end", j.config.End.String()).
		Int("concurrency", j.config.Concurrency).
		Msg("starting wind download")

	indexes := make(chan int, len(j.config.Stations))
	for i := range j.config.Stations {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	for w := 0; w < j.config.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				stationID := j.config.Stations[i]
				if err := ctx.Err(); err != nil {
					result.Stations[i] = StationResult{StationID: stationID, Err: err}
					continue
				}
				result.Stations[i] = j.downloadStation(ctx, stationID)
			}
		}()
	}
	wg.Wait()

	for _, s := range result.Stations {
		if s.Err != nil {
			result.Failed++
		} else {
			result.Successful++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	span.SetAttributes(
		attribute.Int("download.successful", result.Successful),
		attribute.Int("download.failed", result.Failed),
	)
	if result.Failed > 0 {
		span.SetStatus(codes.Error, "some stations failed")
	}

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("wind download completed")

	return result
}

func (j *DownloadJob) downloadStation(ctx context.Context, stationID string) StationResult {
	start := time.Now()
	result := StationResult{StationID: stationID}

	stationCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	q := climate.Query{StationID: stationID, Start: j.config.Start, End: j.config.End}
	for obs, err := range j.wind.Stream(stationCtx, q) {
		if err != nil {
			var malformed *wind.MalformedRecordError
			if errors.As(err, &malformed) {
				result.Malformed++
				j.logger.Warn().Err(err).Str("station_id", stationID).Msg("skipping malformed record")
				continue
			}
			result.Err = err
			break
		}
		result.Observations = append(result.Observations, obs)
	}
	result.Duration = time.Since(start)
	j.metrics.record(ctx, result)

	if result.Err != nil {
		j.logger.Error().Err(result.Err).Str("station_id", stationID).Msg("station download failed")
	} else {
		j.logger.Debug().
			Str("station_id", stationID).
			Int("observations", len(result.Observations)).
			Dur("duration", result.Duration).
			Msg("station downloaded")
	}
	return result
}
