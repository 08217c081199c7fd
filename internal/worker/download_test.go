package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aemetwind/aemetwind/internal/climate"
	"github.com/aemetwind/aemetwind/internal/worker"
)

// stationFetcher serves two days of data per sub-query and fails for
// stations listed in fail.
type stationFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	bad      map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newStationFetcher() *stationFetcher {
	return &stationFetcher{calls: map[string]int{}, fail: map[string]error{}, bad: map[string]bool{}}
}

func (f *stationFetcher) FetchDailyClimate(ctx context.Context, q climate.Query) ([]climate.Record, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[q.StationID]++
	err := f.fail[q.StationID]
	bad := f.bad[q.StationID]
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := []climate.Record{
		{"fecha": q.Start.String(), "velmedia": "2,5", "racha": "8,1", "dir": "32"},
		{"fecha": q.Start.AddDays(1).String(), "velmedia": "3,0"},
	}
	if bad {
		records = append(records, climate.Record{"fecha": "not-a-date"})
	}
	return records, nil
}

func period(t *testing.T, start, end string) (civil.Date, civil.Date) {
	t.Helper()
	s, err := civil.ParseDate(start)
	require.NoError(t, err)
	e, err := civil.ParseDate(end)
	require.NoError(t, err)
	return s, e
}

func TestDefaultDownloadConfig(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297"}, start, end)

	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, time.Second, cfg.Delay)
	assert.NoError(t, cfg.Validate())
}

func TestDownloadConfig_Validate(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")

	assert.ErrorIs(t, worker.DefaultDownloadConfig(nil, start, end).Validate(), worker.ErrNoStations)
	assert.ErrorIs(t, worker.DefaultDownloadConfig([]string{"6297"}, end, start).Validate(), worker.ErrInvalidPeriod)
}

func TestDownloadJob_Run(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297", "3195", "6155A"}, start, end)
	cfg.Delay = 0
	f := newStationFetcher()

	job := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: f, Logger: zerolog.Nop()})
	result := job.Run(context.Background())

	require.Len(t, result.Stations, 3)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.NoError(t, result.Err())
	assert.Empty(t, result.Errors())

	for i, id := range cfg.Stations {
		assert.Equal(t, id, result.Stations[i].StationID)
		assert.Len(t, result.Stations[i].Observations, 2)
	}

	observations := result.Observations()
	require.Len(t, observations, 6)
	assert.Equal(t, "6297", observations[0].StationID)
	assert.Equal(t, "6155A", observations[5].StationID)
	assert.Equal(t, int32(1), f.peak.Load(), "stations run one at a time by default")
}

func TestDownloadJob_Run_LongPeriodIsSplit(t *testing.T) {
	start, end := period(t, "1990-01-01", "2009-10-05")
	cfg := worker.DefaultDownloadConfig([]string{"6297"}, start, end)
	cfg.Delay = 0
	f := newStationFetcher()

	result := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: f, Logger: zerolog.Nop()}).
		Run(context.Background())

	assert.Equal(t, 4, f.calls["6297"])
	assert.Len(t, result.Observations(), 8)
}

func TestDownloadJob_Run_StationFailure(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297", "3195"}, start, end)
	cfg.Delay = 0
	boom := errors.New("boom")
	f := newStationFetcher()
	f.fail["3195"] = boom

	meter, reader := recordMetrics()
	job := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: f, Logger: zerolog.Nop(), Meter: meter})
	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Err(), boom)
	assert.ErrorIs(t, result.Errors()["3195"], boom)
	assert.Len(t, result.Observations(), 2)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["worker.stations/ok"])
	assert.Equal(t, int64(1), sums["worker.stations/failed"])
	assert.Equal(t, int64(2), sums["worker.observations"])
}

func TestDownloadJob_Run_SkipsMalformedRecords(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297"}, start, end)
	cfg.Delay = 0
	f := newStationFetcher()
	f.bad["6297"] = true

	meter, reader := recordMetrics()
	job := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: f, Logger: zerolog.Nop(), Meter: meter})
	result := job.Run(context.Background())

	require.Len(t, result.Stations, 1)
	assert.NoError(t, result.Stations[0].Err)
	assert.Equal(t, 1, result.Stations[0].Malformed)
	assert.Len(t, result.Stations[0].Observations, 2)
	assert.Equal(t, int64(1), collectSums(t, reader)["worker.malformed_records"])
}

func TestDownloadJob_Run_WithConcurrency(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	stations := []string{"A", "B", "C", "D", "E", "F"}
	cfg := worker.DefaultDownloadConfig(stations, start, end)
	cfg.Delay = 0
	cfg.Concurrency = 3
	f := newStationFetcher()

	result := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: f, Logger: zerolog.Nop()}).
		Run(context.Background())

	assert.Equal(t, 6, result.Successful)
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	for i, id := range stations {
		assert.Equal(t, id, result.Stations[i].StationID, "output keeps station order")
	}
}

func TestDownloadJob_Run_ContextCancellation(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297", "3195"}, start, end)
	cfg.Delay = time.Hour
	f := newStationFetcher()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: f, Logger: zerolog.Nop()}).Run(ctx)

	assert.Equal(t, 2, result.Failed)
	assert.ErrorIs(t, result.Err(), context.Canceled)
	assert.Empty(t, f.calls)
}

func TestDownloadJob_MetricsAcrossRuns(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297"}, start, end)
	cfg.Delay = 0

	meter, reader := recordMetrics()
	job := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: newStationFetcher(), Logger: zerolog.Nop(), Meter: meter})
	job.Run(context.Background())
	job.Run(context.Background())

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["worker.stations/ok"])
	assert.Equal(t, int64(4), sums["worker.observations"])
	assert.Equal(t, int64(0), sums["worker.malformed_records"])

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == "worker.station.duration" {
				for _, dp := range h.DataPoints {
					durations += dp.Count
				}
			}
		}
	}
	assert.Equal(t, uint64(2), durations)
}

func TestNewDownloadJob_GlobalMeter(t *testing.T) {
	start, end := period(t, "2019-10-01", "2019-10-31")
	cfg := worker.DefaultDownloadConfig([]string{"6297"}, start, end)
	cfg.Delay = 0

	result := worker.NewDownloadJob(worker.DownloadJobConfig{Config: cfg, Fetcher: newStationFetcher(), Logger: zerolog.Nop()}).
		Run(context.Background())
	assert.Equal(t, 1, result.Successful)
}

func recordMetrics() (metric.Meter, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("worker-test"), reader
}

// collectSums flattens every int64 counter into name or name/outcome keys.
func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := m.Name
				if v, ok := dp.Attributes.Value("worker.outcome"); ok {
					key += "/" + v.AsString()
				}
				out[key] += dp.Value
			}
		}
	}
	return out
}
