package wind

import (
	"context"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/climate"
)

// ServiceConfig holds configuration for the wind service.
type ServiceConfig struct {
	// Fetcher retrieves daily climate records (required).
	Fetcher climate.Fetcher

	// Delay is waited before every sub-query fetch (optional).
	Delay time.Duration

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service reads daily wind observations.
type Service struct {
	fetcher climate.Fetcher
	logger  zerolog.Logger
}

// NewService creates a new wind service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		fetcher: climate.WithDelay(cfg.Fetcher, cfg.Delay),
		logger:  cfg.Logger,
	}
}

// Stream lazily yields the wind observations of q in date order. Malformed
// records surface as errors without ending the stream.
func (s *Service) Stream(ctx context.Context, q climate.Query) iter.Seq2[Observation, error] {
	ctx = s.logger.WithContext(ctx)
	return Map(climate.Collect(ctx, q, s.fetcher), q.StationID)
}

// DailyWindSpeed returns every observation of q. It fails on the first
// malformed record or fetch error.
func (s *Service) DailyWindSpeed(ctx context.Context, q climate.Query) ([]Observation, error) {
	var out []Observation
	for obs, err := range s.Stream(ctx, q) {
		if err != nil {
			s.logger.Error().Err(err).Str("station_id", q.StationID).Msg("reading wind data")
			return nil, err
		}
		out = append(out, obs)
	}
	s.logger.Debug().
		Str("station_id", q.StationID).
		Int("observations", len(out)).
		Msg("wind data collected")
	return out, nil
}
