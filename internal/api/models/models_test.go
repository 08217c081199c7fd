package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/climate"
	"github.com/aemetwind/aemetwind/internal/station"
)

func TestNewPeriod(t *testing.T) {
	q, err := climate.NewQuery("6297", "1990-01-01", "1990-12-31")
	require.NoError(t, err)

	p := models.NewPeriod(q)

	assert.Equal(t, "6297", p.StationID)
	assert.Equal(t, "1990-01-01", p.Start)
	assert.Equal(t, "1990-12-31", p.End)
	assert.InDelta(t, 364.0/365.0, p.Years, 1e-9)
}

func TestNewStation(t *testing.T) {
	s := models.NewStation(station.Station{
		Province:      "MALAGA",
		Name:          "MALAGA AEROPUERTO",
		ID:            "6155A",
		Latitude:      "364000N",
		Longitude:     "043000W",
		Altitude:      "5",
		SynopticIndex: "08482",
	})

	assert.Equal(t, "6155A", s.StationID)
	assert.Equal(t, "MALAGA", s.Province)
	require.NotNil(t, s.Lat)
	require.NotNil(t, s.Lon)
	assert.InDelta(t, 36.666667, *s.Lat, 1e-6)
	assert.InDelta(t, -4.5, *s.Lon, 1e-6)
	require.NotNil(t, s.AltitudeM)
	assert.Equal(t, 5, *s.AltitudeM)
	assert.Nil(t, s.DistanceKm)
}

func TestNewStation_BadCoordinates(t *testing.T) {
	s := models.NewStation(station.Station{ID: "X1", Latitude: "garbage", Longitude: "", Altitude: "n/a"})

	assert.Equal(t, "X1", s.StationID)
	assert.Nil(t, s.Lat)
	assert.Nil(t, s.Lon)
	assert.Nil(t, s.AltitudeM)
}

func TestTimestamp(t *testing.T) {
	madrid := time.FixedZone("CEST", 2*60*60)
	ts := models.Timestamp(time.Date(2024, 7, 1, 14, 30, 0, 0, madrid))

	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-07-01T12:30:00Z"`, string(out))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-07-01T14:30:00+02:00"`), &back))
	assert.True(t, ts.Time().Equal(back.Time()))

	require.NoError(t, json.Unmarshal([]byte(`null`), &back))
	assert.True(t, ts.Time().Equal(back.Time()))

	assert.Error(t, json.Unmarshal([]byte(`""`), &back))
	assert.Error(t, json.Unmarshal([]byte(`1`), &back))
}
