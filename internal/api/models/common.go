// Package models holds the JSON bodies of the aemetwind API.
package models

import (
	"encoding/json"
	"time"
)

// ListMeta describes a list response.
type ListMeta struct {
	Count int `json:"count"`
}

// Timestamp is a time sent as RFC 3339 in UTC, to the second.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339))
}

// UnmarshalJSON accepts any RFC 3339 time and leaves t alone on null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns t as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
