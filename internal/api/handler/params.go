package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/climate"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("param")
	})
	return v
}

// periodParams are the inputs of every per-station daily endpoint.
type periodParams struct {
	StationID string `param:"stationId" validate:"required,alphanum,max=10"`
	Start     string `param:"start" validate:"required,datetime=2006-01-02"`
	End       string `param:"end" validate:"required,datetime=2006-01-02"`
}

// parsePeriod reads the station from the route or the query string, and the
// date range from the query string.
func parsePeriod(r *http.Request) (climate.Query, []models.FieldError) {
	p := periodParams{
		StationID: chi.URLParam(r, "stationId"),
		Start:     r.URL.Query().Get("start"),
		End:       r.URL.Query().Get("end"),
	}
	if p.StationID == "" {
		p.StationID = r.URL.Query().Get("stationId")
	}
	if err := validate.Struct(p); err != nil {
		return climate.Query{}, fieldErrors(err)
	}

	q, err := climate.NewQuery(p.StationID, p.Start, p.End)
	if err != nil {
		return climate.Query{}, []models.FieldError{{Field: "start", Message: err.Error(), Code: "datetime"}}
	}
	if q.End.Before(q.Start) {
		return climate.Query{}, []models.FieldError{{Field: "end", Message: "must not be before start", Code: "gtefield"}}
	}
	return q, nil
}

// floatParam parses an optional float query parameter.
func floatParam(r *http.Request, name string) (*float64, *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &models.FieldError{Field: name, Message: "must be a number", Code: "numeric"}
	}
	return &v, nil
}

func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must be a YYYY-MM-DD date"
	case "alphanum":
		return "must be alphanumeric"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
