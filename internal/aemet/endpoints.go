package aemet

import (
	"fmt"
	"net/url"

	"github.com/aemetwind/aemetwind/internal/climate"
)

// DailyClimateEndpoint builds the daily climatological values URL for q.
// The start is sent as midnight and the end as the last second of the day.
func DailyClimateEndpoint(baseURL string, q climate.Query, apiKey string) string {
	return fmt.Sprintf(
		"%s/valores/climatologicos/diarios/datos/fechaini/%sT00:00:00UTC/fechafin/%sT23:59:59UTC/estacion/%s/?api_key=%s",
		baseURL,
		q.Start.String(),
		q.End.String(),
		url.PathEscape(q.StationID),
		url.QueryEscape(apiKey),
	)
}

// StationInventoryEndpoint builds the URL listing every climatological station.
func StationInventoryEndpoint(baseURL, apiKey string) string {
	return fmt.Sprintf("%s/valores/climatologicos/inventarioestaciones/todasestaciones/?api_key=%s",
		baseURL, url.QueryEscape(apiKey))
}
