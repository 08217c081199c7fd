// Package station reads the AEMET climatological station inventory.
package station

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Station is an entry of the climatological station inventory.
type Station struct {
	Province      string `json:"provincia"`
	Name          string `json:"nombre"`
	ID            string `json:"indicativo"`
	Latitude      string `json:"latitud"`
	Longitude     string `json:"longitud"`
	Altitude      string `json:"altitud"`
	SynopticIndex string `json:"indsinop"`
}

// ErrInvalidCoordinate is wrapped by DecodeCoordinate errors.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// DecodeCoordinate converts an AEMET coordinate such as "402429N" to decimal
// degrees. The six digits are DDMMSS, so "402500N" is 40.416667 and not
// 40.25, and the letter is the hemisphere. S and W are negative.
func DecodeCoordinate(s string) (float64, error) {
	if len(s) != 7 {
		return 0, fmt.Errorf("%w: %q is not 7 characters", ErrInvalidCoordinate, s)
	}

	var sign float64
	switch s[6] {
	case 'N', 'E':
		sign = 1
	case 'S', 'W':
		sign = -1
	default:
		return 0, fmt.Errorf("%w: %q has no hemisphere", ErrInvalidCoordinate, s)
	}

	for i := range 6 {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
		}
	}
	n, _ := strconv.Atoi(s[:6])
	deg, minutes, seconds := n/10000, (n/100)%100, n%100
	if minutes >= 60 || seconds >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	return sign * (float64(deg) + float64(minutes)/60 + float64(seconds)/3600), nil
}

// Coordinates returns the decimal latitude and longitude of the station.
func (s Station) Coordinates() (lat, lon float64, err error) {
	if lat, err = DecodeCoordinate(s.Latitude); err != nil {
		return 0, 0, fmt.Errorf("station %s latitude: %w", s.ID, err)
	}
	if !strings.ContainsAny(s.Latitude[6:], "NS") {
		return 0, 0, fmt.Errorf("station %s latitude: %w: %q", s.ID, ErrInvalidCoordinate, s.Latitude)
	}
	if lon, err = DecodeCoordinate(s.Longitude); err != nil {
		return 0, 0, fmt.Errorf("station %s longitude: %w", s.ID, err)
	}
	if !strings.ContainsAny(s.Longitude[6:], "EW") {
		return 0, 0, fmt.Errorf("station %s longitude: %w: %q", s.ID, ErrInvalidCoordinate, s.Longitude)
	}
	return lat, lon, nil
}

// AltitudeMeters parses the altitude in meters.
func (s Station) AltitudeMeters() (int, error) {
	return strconv.Atoi(strings.TrimSpace(s.Altitude))
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
