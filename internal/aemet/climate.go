package aemet

import (
	"context"
	"errors"
	"iter"

	"github.com/aemetwind/aemetwind/internal/climate"
)

// FetchDailyClimate returns the daily climate records of a query spanning at
// most climate.MaxYears. Longer queries fail with *climate.SpanTooLargeError
// before any request is made; use climate.Collect to split them.
//
// A query that matches nothing yields an empty slice and a warning.
func (c *Client) FetchDailyClimate(ctx context.Context, q climate.Query) ([]climate.Record, error) {
	if err := climate.CheckSpan(q, climate.MaxYears); err != nil {
		return nil, err
	}

	var records []climate.Record
	err := c.Data(ctx, DailyClimateEndpoint(c.baseURL, q, c.apiKey), &records)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsNoData() {
			c.metrics.recordNoData(ctx, q.StationID)
			c.logger.Warn().
				Str("station_id", q.StationID).
				Str("start", q.Start.String()).
				Str("end", q.End.String()).
				Msg(apiErr.Description)
			return []climate.Record{}, nil
		}
		return nil, err
	}

	if records == nil {
		records = []climate.Record{}
	}
	return records, nil
}

// DailyClimateMetadata returns the field descriptions of the daily climate
// dataset for q.
func (c *Client) DailyClimateMetadata(ctx context.Context, q climate.Query) (*Metadata, error) {
	return c.Metadata(ctx, DailyClimateEndpoint(c.baseURL, q, c.apiKey))
}

// DailyClimate lazily streams every record of q, splitting it into
// sub-queries the API accepts.
func (c *Client) DailyClimate(ctx context.Context, q climate.Query) iter.Seq2[climate.Record, error] {
	return climate.Collect(ctx, q, c)
}
