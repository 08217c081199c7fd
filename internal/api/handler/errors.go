package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/aemet"
	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/api/response"
	"github.com/aemetwind/aemetwind/internal/climate"
	"github.com/aemetwind/aemetwind/internal/provider/resilience"
)

// writeError maps a fetch error to a problem response:
//
//	span too large                 400
//	AEMET estado 404               404
//	AEMET estado 429 or HTTP 429   429
//	other AEMET error or status    502, with the upstream answer
//	circuit open, no API key       503
//	anything else                  502
//
// Every error reaching here came from the AEMET fetch path.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	var (
		spanErr   *climate.SpanTooLargeError
		apiErr    *aemet.APIError
		statusErr *aemet.StatusError
	)
	retryAfter, throttled := aemet.Throttled(err)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug().Err(err).Msg("request cancelled by client")

	case errors.As(err, &spanErr):
		response.BadRequest(w, r, err.Error(), nil)

	case throttled:
		logger.Warn().Err(err).Dur("retry_after", retryAfter).Msg("aemet quota exhausted")
		response.TooManyRequests(w, r, "AEMET rate limit reached, try again later", retryAfter)

	case errors.As(err, &apiErr):
		logger.Warn().Err(err).Int("estado", apiErr.Status).Msg("aemet api error")
		if apiErr.Status == http.StatusNotFound {
			response.NotFound(w, r, apiErr.Description)
			return
		}
		response.BadGateway(w, r, "AEMET rejected the request", &models.Upstream{
			Provider:    aemet.ProviderName,
			Status:      apiErr.Status,
			Description: apiErr.Description,
		})

	case errors.As(err, &statusErr):
		logger.Warn().Err(err).Int("status", statusErr.StatusCode).Msg("aemet http error")
		response.BadGateway(w, r, "AEMET answered without an envelope", &models.Upstream{
			Provider: aemet.ProviderName,
			Status:   statusErr.StatusCode,
		})

	case errors.Is(err, resilience.ErrCircuitOpen):
		logger.Warn().Err(err).Msg("aemet circuit open")
		response.ServiceUnavailable(w, r, "AEMET is temporarily unavailable")

	case errors.Is(err, aemet.ErrMissingAPIKey):
		logger.Error().Err(err).Msg("aemet api key not configured")
		response.ServiceUnavailable(w, r, "AEMET access is not configured")

	default:
		logger.Error().Err(err).Msg("aemet request failed")
		response.BadGateway(w, r, err.Error(), nil)
	}
}
