package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aemetwind/aemetwind/internal/aemet"
	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/api/response"
	"github.com/aemetwind/aemetwind/internal/climate"
)

const (
	maxDecomposeYears  = 100
	maxDecomposeChunks = 1000
)

// ClimateSource serves daily climate records and their field descriptions.
// *aemet.Client implements it.
type ClimateSource interface {
	climate.Fetcher
	DailyClimateMetadata(ctx context.Context, q climate.Query) (*aemet.Metadata, error)
}

// ClimateHandler handles query decomposition and raw daily climate endpoints.
type ClimateHandler struct {
	source  ClimateSource
	fetcher climate.Fetcher
}

// NewClimateHandler creates a new ClimateHandler. delay is waited before
// every sub-query fetch.
func NewClimateHandler(source ClimateSource, delay time.Duration) *ClimateHandler {
	return &ClimateHandler{
		source:  source,
		fetcher: climate.WithDelay(source, delay),
	}
}

// Decompose handles GET /v1/queries/decompose. It only computes the split
// and never calls AEMET.
func (h *ClimateHandler) Decompose(w http.ResponseWriter, r *http.Request) {
	q, errs := parsePeriod(r)

	maxYears := float64(climate.MaxYears)
	v, fe := floatParam(r, "maxYears")
	if fe != nil {
		errs = append(errs, *fe)
	} else if v != nil {
		if climate.SpanDays(*v) < 1 || *v > maxDecomposeYears {
			errs = append(errs, models.FieldError{Field: "maxYears", Message: "must be between 1/365 and 100", Code: "range"})
		}
		maxYears = *v
	}
	if len(errs) == 0 {
		if n := climate.CountChunks(q, maxYears); n > maxDecomposeChunks {
			errs = append(errs, models.FieldError{
				Field:   "maxYears",
				Message: fmt.Sprintf("splits the period into %d chunks, at most %d allowed", n, maxDecomposeChunks),
				Code:    "too_many_chunks",
			})
		}
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}

	chunks := climate.Decompose(q, maxYears)
	out := models.Decomposition{
		Query:    models.NewPeriod(q),
		MaxYears: maxYears,
		Chunks:   make([]models.Period, 0, len(chunks)),
	}
	for _, c := range chunks {
		out.Chunks = append(out.Chunks, models.NewPeriod(c))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// DailyClimate handles GET /v1/stations/{stationId}/climate/daily. Records
// are streamed as NDJSON, in date order, as each sub-query completes.
func (h *ClimateHandler) DailyClimate(w http.ResponseWriter, r *http.Request) {
	q, errs := parsePeriod(r)
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}
	streamNDJSON(w, r, climate.Collect(r.Context(), q, h.fetcher), nil)
}

// DailyClimateMetadata handles GET /v1/stations/{stationId}/climate/daily/metadata.
// The range must fit in a single request.
func (h *ClimateHandler) DailyClimateMetadata(w http.ResponseWriter, r *http.Request) {
	q, errs := parsePeriod(r)
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}
	if err := climate.CheckSpan(q, climate.MaxYears); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	md, err := h.source.DailyClimateMetadata(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, md)
}
