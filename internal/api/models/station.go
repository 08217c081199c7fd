package models

import "github.com/aemetwind/aemetwind/internal/station"

// Station is an inventory entry with decoded coordinates.
type Station struct {
	StationID     string   `json:"stationId"`
	Name          string   `json:"name"`
	Province      string   `json:"province"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	AltitudeM     *int     `json:"altitudeM,omitempty"`
	SynopticIndex string   `json:"synopticIndex,omitempty"`
	DistanceKm    *float64 `json:"distanceKm,omitempty"`
}

// NewStation converts an inventory entry. Undecodable coordinates or
// altitude are left out rather than failing the listing.
func NewStation(s station.Station) Station {
	out := Station{
		StationID:     s.ID,
		Name:          s.Name,
		Province:      s.Province,
		SynopticIndex: s.SynopticIndex,
	}
	if lat, lon, err := s.Coordinates(); err == nil {
		out.Lat, out.Lon = &lat, &lon
	}
	if alt, err := s.AltitudeMeters(); err == nil {
		out.AltitudeM = &alt
	}
	return out
}

// StationList is the response of the station listing.
type StationList struct {
	Items []Station `json:"items"`
	Meta  ListMeta  `json:"meta"`
}
