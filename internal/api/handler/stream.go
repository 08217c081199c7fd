package handler

import (
	"iter"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aemetwind/aemetwind/internal/api/response"
)

// streamNDJSON writes seq as newline-delimited JSON.
//
// The first item is pulled before anything is written, so a failure of the
// first AEMET request still produces a problem response with a proper status.
// Once the stream has started, an error ends it and is only logged. Errors
// for which skip returns true are logged and the stream continues.
func streamNDJSON[T any](w http.ResponseWriter, r *http.Request, seq iter.Seq2[T, error], skip func(error) bool) {
	logger := zerolog.Ctx(r.Context())
	if skip == nil {
		skip = func(error) bool { return false }
	}

	next, stop := iter.Pull2(seq)
	defer stop()

	item, err, ok := next()
	skipped := 0
	for ok && err != nil && skip(err) {
		skipped++
		logger.Warn().Err(err).Msg("skipping item")
		item, err, ok = next()
	}
	if ok && err != nil {
		writeError(w, r, err)
		return
	}

	out := response.NDJSON(w, r)
	for ; ok; item, err, ok = next() {
		if err != nil {
			if skip(err) {
				skipped++
				logger.Warn().Err(err).Msg("skipping item")
				continue
			}
			logger.Error().Err(err).Int("written", out.Count()).Msg("stream aborted")
			return
		}
		if encErr := out.Encode(item); encErr != nil {
			logger.Debug().Err(encErr).Int("written", out.Count()).Msg("client went away")
			return
		}
	}

	logger.Debug().Int("written", out.Count()).Int("skipped", skipped).Msg("stream completed")
}
