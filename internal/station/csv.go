package station

import (
	"encoding/csv"
	"io"
)

// CSVHeader is the inventory column order.
var CSVHeader = []string{"provincia", "nombre", "indicativo", "latitud", "longitud", "altitud", "indsinop"}

// WriteCSV writes stations as a semicolon separated table with a header row.
func WriteCSV(w io.Writer, stations []Station) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, st := range stations {
		row := []string{st.Province, st.Name, st.ID, st.Latitude, st.Longitude, st.Altitude, st.SynopticIndex}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
