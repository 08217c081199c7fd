package climate

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"
)

// Fetcher retrieves the daily climate records for a single query whose span
// is within the API limit.
type Fetcher interface {
	FetchDailyClimate(ctx context.Context, q Query) ([]Record, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, q Query) ([]Record, error)

// FetchDailyClimate calls f(ctx, q).
func (f FetcherFunc) FetchDailyClimate(ctx context.Context, q Query) ([]Record, error) {
	return f(ctx, q)
}

// SpanTooLargeError is returned when a single request would exceed the
// number of years the API serves at once.
type SpanTooLargeError struct {
	Query    Query
	MaxYears float64
}

func (e *SpanTooLargeError) Error() string {
	return fmt.Sprintf("query %s spans %.2f years, more than the %g allowed", e.Query, e.Query.Years(), e.MaxYears)
}

// CheckSpan reports a *SpanTooLargeError when q spans more than maxYears.
func CheckSpan(q Query, maxYears float64) error {
	if q.Years() > maxYears {
		return &SpanTooLargeError{Query: q, MaxYears: maxYears}
	}
	return nil
}

// Collect returns a lazy sequence over every record of q. The query is split
// with Decompose and each sub-query is fetched only once the consumer has
// drained the records of the previous one. Stopping the range stops fetching.
//
// A fetch error is yielded once with a nil Record and ends the sequence.
// The sequence is single-pass: ranging over it again refetches everything.
func Collect(ctx context.Context, q Query, f Fetcher) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		logger := zerolog.Ctx(ctx)
		chunks := Decompose(q, MaxYears)

		for i, chunk := range chunks {
			logger.Debug().
				Str("station_id", chunk.StationID).
				Str("start", chunk.Start.String()).
				Str("end", chunk.End.String()).
				Int("chunk", i+1).
				Int("chunks", len(chunks)).
				Msg("fetching daily climate chunk")

			records, err := f.FetchDailyClimate(ctx, chunk)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// CollectAll drains Collect into a slice.
func CollectAll(ctx context.Context, q Query, f Fetcher) ([]Record, error) {
	var out []Record
	for rec, err := range Collect(ctx, q, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// WithDelay wraps f so that every fetch waits d first. The wait is cut short
// when ctx is done.
func WithDelay(f Fetcher, d time.Duration) Fetcher {
	if d <= 0 {
		return f
	}
	return FetcherFunc(func(ctx context.Context, q Query) ([]Record, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		return f.FetchDailyClimate(ctx, q)
	})
}
