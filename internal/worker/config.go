// Package worker runs bulk wind downloads across many stations.
package worker

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"
)

// Config validation errors.
var (
	ErrNoStations    = errors.New("no stations to download")
	ErrInvalidPeriod = errors.New("start date is after end date")
)

// DownloadConfig holds configuration for a multi-station download.
type DownloadConfig struct {
	// Stations are the AEMET station identifiers (indicativo) to download,
	// in output order.
	Stations []string

	// Start and End bound the period, inclusive.
	Start civil.Date
	End   civil.Date

	// Concurrency is the number of stations downloaded at once.
	// AEMET throttles per API key, so more than a couple rarely helps.
	// Default: 1
	Concurrency int

	// Timeout bounds the download of a single station.
	// Default: 10 minutes
	Timeout time.Duration

	// Delay is waited before every request.
	// Default: 1 second
	Delay time.Duration
}

// DefaultDownloadConfig returns the default configuration for the given stations and period.
func DefaultDownloadConfig(stations []string, start, end civil.Date) DownloadConfig {
	return DownloadConfig{
		Stations:    stations,
		Start:       start,
		End:         end,
		Concurrency: 1,
		Timeout:     10 * time.Minute,
		Delay:       time.Second,
	}
}

// Validate checks that the configuration describes a runnable download.
func (c DownloadConfig) Validate() error {
	if len(c.Stations) == 0 {
		return ErrNoStations
	}
	if c.End.Before(c.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (c DownloadConfig) withDefaults() DownloadConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}
