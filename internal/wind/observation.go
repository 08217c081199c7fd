// Package wind turns AEMET daily climate records into typed wind observations.
package wind

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/aemetwind/aemetwind/internal/climate"
)

// AEMET field names read by the mapper.
const (
	FieldDate         = "fecha"
	FieldAveWindSpeed = "velmedia"
	FieldMaxGust      = "racha"
	FieldDirection    = "dir"
)

// Direction codes AEMET uses instead of tens of degrees.
const (
	DirectionNoData   = 88
	DirectionVariable = 99
)

// Observation is the daily wind summary of one station. Nil fields mean the
// station did not report the value that day.
type Observation struct {
	StationID string     `json:"station_id"`
	Date      civil.Date `json:"date"`

	// AveWindSpeed is the mean wind speed in m/s.
	AveWindSpeed *float64 `json:"ave_wind_speed"`

	// MaxGust is the strongest gust in m/s.
	MaxGust *float64 `json:"max_gust"`

	// Direction of the strongest gust in tens of degrees.
	Direction *int `json:"direction"`
}

// DirectionDegrees returns the gust direction in compass degrees. It reports
// false when the direction is missing, variable or out of range.
func (o Observation) DirectionDegrees() (float64, bool) {
	if o.Direction == nil {
		return 0, false
	}
	d := *o.Direction
	if d < 0 || d > 36 {
		return 0, false
	}
	return float64(d * 10), true
}

// MalformedRecordError reports a record field that could not be converted.
type MalformedRecordError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed record: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed record: field %q value %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// ErrMissingField is wrapped by MalformedRecordError when a required field is absent.
var ErrMissingField = errors.New("missing required field")

// MapRecord converts one daily climate record into an Observation for stationID.
// fecha is required; velmedia, racha and dir are optional.
func MapRecord(stationID string, rec climate.Record) (Observation, error) {
	raw, ok := rec[FieldDate]
	if !ok {
		return Observation{}, &MalformedRecordError{Field: FieldDate, Err: ErrMissingField}
	}
	date, err := civil.ParseDate(raw)
	if err != nil {
		return Observation{}, &MalformedRecordError{Field: FieldDate, Value: raw, Err: err}
	}

	obs := Observation{StationID: stationID, Date: date}

	if obs.AveWindSpeed, err = speedField(rec, FieldAveWindSpeed); err != nil {
		return Observation{}, err
	}
	if obs.MaxGust, err = speedField(rec, FieldMaxGust); err != nil {
		return Observation{}, err
	}
	if obs.Direction, err = directionField(rec); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// speedField parses a comma-decimal speed such as "3,6".
func speedField(rec climate.Record, field string) (*float64, error) {
	raw, ok := rec[field]
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if err != nil {
		return nil, &MalformedRecordError{Field: field, Value: raw, Err: err}
	}
	return &v, nil
}

func directionField(rec climate.Record) (*int, error) {
	raw, ok := rec[FieldDirection]
	if !ok {
		return nil, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, &MalformedRecordError{Field: FieldDirection, Value: raw, Err: err}
	}
	return &v, nil
}

// Map lazily converts records into observations for stationID. A malformed
// record is yielded as an error and mapping carries on with the next one if
// the consumer keeps ranging. An upstream error is passed through and ends
// the sequence.
func Map(records iter.Seq2[climate.Record, error], stationID string) iter.Seq2[Observation, error] {
	return func(yield func(Observation, error) bool) {
		for rec, err := range records {
			if err != nil {
				yield(Observation{}, err)
				return
			}
			if !yield(MapRecord(stationID, rec)) {
				return
			}
		}
	}
}
