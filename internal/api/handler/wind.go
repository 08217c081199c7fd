package handler

import (
	"errors"
	"net/http"

	"github.com/aemetwind/aemetwind/internal/api/response"
	"github.com/aemetwind/aemetwind/internal/wind"
)

// WindHandler handles daily wind endpoints.
type WindHandler struct {
	service *wind.Service
}

// NewWindHandler creates a new WindHandler.
func NewWindHandler(service *wind.Service) *WindHandler {
	return &WindHandler{service: service}
}

// DailyWind handles GET /v1/stations/{stationId}/wind/daily. Observations
// are streamed as NDJSON; malformed records are logged and left out.
func (h *WindHandler) DailyWind(w http.ResponseWriter, r *http.Request) {
	q, errs := parsePeriod(r)
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}
	streamNDJSON(w, r, h.service.Stream(r.Context(), q), isMalformed)
}

func isMalformed(err error) bool {
	var malformed *wind.MalformedRecordError
	return errors.As(err, &malformed)
}
