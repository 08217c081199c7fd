package climate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one daily climate row as returned by AEMET, keyed by the
// upstream field names (fecha, indicativo, velmedia, racha, dir, ...).
// Values are kept verbatim; AEMET encodes decimals with a comma.
type Record map[string]string

// UnmarshalJSON accepts string, number and boolean values. Numbers keep
// their literal text. Null values are dropped.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Record, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0 || bytes.Equal(v, []byte("null")):
			continue
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = s
		case v[0] == '{' || v[0] == '[':
			return fmt.Errorf("field %q: unsupported nested value", k)
		default:
			out[k] = string(v)
		}
	}
	*r = out
	return nil
}

// Get returns the value of field and whether it was present.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}
