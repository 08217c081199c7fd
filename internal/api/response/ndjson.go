package response

import (
	"encoding/json"
	"errors"
	"net/http"
)

// NDJSONContentType is the media type of newline-delimited JSON streams.
const NDJSONContentType = "application/x-ndjson"

// NDJSONWriter streams one JSON document per line, flushing after each.
type NDJSONWriter struct {
	enc   *json.Encoder
	rc    *http.ResponseController
	count int
}

// NDJSON writes a 200 status with the NDJSON content type and returns a
// writer for the body. The status is committed: later failures can only end
// the stream early.
func NDJSON(w http.ResponseWriter, r *http.Request) *NDJSONWriter {
	setRequestID(w, r)
	w.Header().Set("Content-Type", NDJSONContentType)
	w.WriteHeader(http.StatusOK)
	return &NDJSONWriter{enc: json.NewEncoder(w), rc: http.NewResponseController(w)}
}

// Encode writes v as one line.
func (n *NDJSONWriter) Encode(v any) error {
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	n.count++
	if err := n.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Count returns the number of lines written.
func (n *NDJSONWriter) Count() int {
	return n.count
}
