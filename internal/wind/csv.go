package wind

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVHeader is the column order written by WriteCSV.
var CSVHeader = []string{"station_id", "date", "ave_wind_speed", "max_gust", "direction"}

// CSVWriter writes observations as CSV rows. Missing values are empty cells.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter returns a writer that emits the header before the first row.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the header row once.
func (cw *CSVWriter) WriteHeader() error {
	if cw.wroteHeader {
		return nil
	}
	cw.wroteHeader = true
	return cw.w.Write(CSVHeader)
}

// Write appends one observation.
func (cw *CSVWriter) Write(obs Observation) error {
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	return cw.w.Write([]string{
		obs.StationID,
		obs.Date.String(),
		formatFloat(obs.AveWindSpeed),
		formatFloat(obs.MaxGust),
		formatInt(obs.Direction),
	})
}

// Flush writes buffered rows to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}

// WriteCSV writes a header and one row per observation.
func WriteCSV(w io.Writer, observations []Observation) error {
	cw := NewCSVWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	for _, obs := range observations {
		if err := cw.Write(obs); err != nil {
			return err
		}
	}
	return cw.Flush()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
