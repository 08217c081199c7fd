package models

import "github.com/aemetwind/aemetwind/internal/climate"

// Period is a station query as exposed by the API.
type Period struct {
	StationID string  `json:"stationId"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Years     float64 `json:"years"`
}

// NewPeriod converts a climate query.
func NewPeriod(q climate.Query) Period {
	return Period{
		StationID: q.StationID,
		Start:     q.Start.String(),
		End:       q.End.String(),
		Years:     q.Years(),
	}
}

// Decomposition lists the sub-queries a long query is split into.
type Decomposition struct {
	Query    Period   `json:"query"`
	MaxYears float64  `json:"maxYears"`
	Chunks   []Period `json:"chunks"`
}
