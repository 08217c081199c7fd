package station

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/aemet"
)

// Provider serves the raw station inventory.
type Provider interface {
	StationInventory(ctx context.Context, v any) error
	StationInventoryMetadata(ctx context.Context) (*aemet.Metadata, error)
}

// ServiceConfig holds configuration for the station service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger
}

// Service lists climatological stations.
type Service struct {
	provider Provider
	logger   zerolog.Logger
}

// NewService creates a new station service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{provider: cfg.Provider, logger: cfg.Logger}
}

// Inventory returns every station, sorted by ID.
func (s *Service) Inventory(ctx context.Context) ([]Station, error) {
	var stations []Station
	if err := s.provider.StationInventory(ctx, &stations); err != nil {
		return nil, fmt.Errorf("fetching station inventory: %w", err)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].ID < stations[j].ID })

	s.logger.Debug().Int("stations", len(stations)).Msg("station inventory loaded")
	return stations, nil
}

// InventoryMetadata returns the field descriptions of the inventory.
func (s *Service) InventoryMetadata(ctx context.Context) (*aemet.Metadata, error) {
	md, err := s.provider.StationInventoryMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching station inventory metadata: %w", err)
	}
	return md, nil
}

// Nearby is a station together with its distance to a target point.
type Nearby struct {
	Station
	DistanceKm float64 `json:"distance_km"`
}

// Near returns the stations within maxKm of (lat, lon), closest first.
// Stations with undecodable coordinates are skipped.
func Near(stations []Station, lat, lon, maxKm float64) []Nearby {
	var out []Nearby
	for _, st := range stations {
		sLat, sLon, err := st.Coordinates()
		if err != nil {
			continue
		}
		if d := DistanceKm(lat, lon, sLat, sLon); d <= maxKm {
			out = append(out, Nearby{Station: st, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// InProvince returns the stations whose province matches name, ignoring case.
func InProvince(stations []Station, name string) []Station {
	var out []Station
	for _, st := range stations {
		if strings.EqualFold(strings.TrimSpace(st.Province), strings.TrimSpace(name)) {
			out = append(out, st)
		}
	}
	return out
}
