package handler

import (
	"net/http"

	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/api/response"
	"github.com/aemetwind/aemetwind/internal/station"
)

// defaultRadiusKm is the search radius when lat and lon are given without radiusKm.
const defaultRadiusKm = 50

// stationFilter narrows the station listing.
type stationFilter struct {
	Province string   `param:"province" validate:"omitempty,max=64"`
	Lat      *float64 `param:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon      *float64 `param:"lon" validate:"omitempty,gte=-180,lte=180"`
	RadiusKm *float64 `param:"radiusKm" validate:"omitempty,gt=0,lte=2000"`
}

// StationHandler handles station inventory endpoints.
type StationHandler struct {
	service *station.Service
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(service *station.Service) *StationHandler {
	return &StationHandler{service: service}
}

// ListStations handles GET /v1/stations. Optional filters: province, and
// lat/lon with radiusKm. With a point, results are sorted by distance.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	f, errs := parseStationFilter(r)
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}

	stations, err := h.service.Inventory(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if f.Province != "" {
		stations = station.InProvince(stations, f.Province)
	}

	items := make([]models.Station, 0, len(stations))
	if f.Lat != nil {
		radius := float64(defaultRadiusKm)
		if f.RadiusKm != nil {
			radius = *f.RadiusKm
		}
		for _, n := range station.Near(stations, *f.Lat, *f.Lon, radius) {
			s := models.NewStation(n.Station)
			d := n.DistanceKm
			s.DistanceKm = &d
			items = append(items, s)
		}
	} else {
		for _, s := range stations {
			items = append(items, models.NewStation(s))
		}
	}

	response.JSON(w, r, http.StatusOK, models.StationList{
		Items: items,
		Meta:  models.ListMeta{Count: len(items)},
	})
}

// InventoryMetadata handles GET /v1/stations/metadata.
func (h *StationHandler) InventoryMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.service.InventoryMetadata(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, md)
}

func parseStationFilter(r *http.Request) (stationFilter, []models.FieldError) {
	f := stationFilter{Province: r.URL.Query().Get("province")}

	var errs []models.FieldError
	for name, dst := range map[string]**float64{"lat": &f.Lat, "lon": &f.Lon, "radiusKm": &f.RadiusKm} {
		v, fe := floatParam(r, name)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		*dst = v
	}
	if len(errs) > 0 {
		return f, errs
	}

	if err := validate.Struct(f); err != nil {
		return f, fieldErrors(err)
	}
	if (f.Lat == nil) != (f.Lon == nil) {
		return f, []models.FieldError{{Field: "lat", Message: "lat and lon must be given together", Code: "required_with"}}
	}
	if f.RadiusKm != nil && f.Lat == nil {
		return f, []models.FieldError{{Field: "radiusKm", Message: "requires lat and lon", Code: "required_with"}}
	}
	return f, nil
}
