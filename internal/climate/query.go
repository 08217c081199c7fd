// Package climate models daily climatological queries against AEMET OpenData
// and splits long date ranges into spans the API accepts.
package climate

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"
)

const (
	// MaxYears is the longest span the daily climate endpoint serves in one request.
	MaxYears = 5

	// daysPerYear is the fixed year length used for span arithmetic.
	// Leap days are not accounted for.
	daysPerYear = 365
)

// Query asks for daily climate records of one station over an inclusive
// calendar date range. Start must not be after End.
type Query struct {
	StationID string
	Start     civil.Date
	End       civil.Date
}

// NewQuery parses YYYY-MM-DD dates into a Query.
func NewQuery(stationID, start, end string) (Query, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return Query{}, fmt.Errorf("parsing start date: %w", err)
	}
	e, err := civil.ParseDate(end)
	if err != nil {
		return Query{}, fmt.Errorf("parsing end date: %w", err)
	}
	return Query{StationID: stationID, Start: s, End: e}, nil
}

// Years returns the span of the query in 365-day years.
func (q Query) Years() float64 {
	return float64(q.End.DaysSince(q.Start)) / daysPerYear
}

func (q Query) String() string {
	return fmt.Sprintf("%s[%s..%s]", q.StationID, q.Start, q.End)
}

// Decompose splits q into consecutive sub-queries, each spanning at most
// maxYears. The result covers [q.Start, q.End] exactly, in ascending order,
// without gaps or overlaps. A query that already fits is returned as is.
func Decompose(q Query, maxYears float64) []Query {
	if q.Years() <= maxYears {
		return []Query{q}
	}

	step := SpanDays(maxYears)
	var chunks []Query
	cursor := q.Start
	for {
		end := cursor.AddDays(step)
		if !end.Before(q.End) {
			chunks = append(chunks, Query{StationID: q.StationID, Start: cursor, End: q.End})
			return chunks
		}
		chunks = append(chunks, Query{StationID: q.StationID, Start: cursor, End: end})
		cursor = end.AddDays(1)
	}
}

// SpanDays is how many days past its start a chunk of maxYears reaches, so a
// full chunk covers SpanDays+1 calendar days. Spans that are not positive
// and finite give 0, which makes every chunk a single day.
func SpanDays(maxYears float64) int {
	if math.IsNaN(maxYears) || math.IsInf(maxYears, 0) || maxYears <= 0 {
		return 0
	}
	return int(maxYears * daysPerYear)
}

// CountChunks returns len(Decompose(q, maxYears)) without building the chunks.
func CountChunks(q Query, maxYears float64) int {
	if q.Years() <= maxYears {
		return 1
	}
	per := SpanDays(maxYears) + 1
	days := q.End.DaysSince(q.Start) + 1
	return (days + per - 1) / per
}
