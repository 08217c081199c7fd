package aemet_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/aemetwind/aemetwind/internal/aemet"
	"github.com/aemetwind/aemetwind/internal/climate"
	"github.com/aemetwind/aemetwind/internal/provider/resilience"
)

const testAPIKey = "test-key"

// fakeAEMET serves envelopes on any /valores path and the payloads they
// point to under /datos and /metadatos.
type fakeAEMET struct {
	t         *testing.T
	server    *httptest.Server
	envelopes atomic.Int32
	payloads  atomic.Int32

	mu    sync.Mutex
	paths []string

	envelope   func(r *http.Request) (int, string)
	data       func(r *http.Request) (string, []byte)
	retryAfter string
}

func newFakeAEMET(t *testing.T) *fakeAEMET {
	t.Helper()
	f := &fakeAEMET{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAEMET) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/valores/"):
		f.envelopes.Add(1)
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		assert.Equal(f.t, testAPIKey, r.URL.Query().Get("api_key"))

		status, body := http.StatusOK, ""
		if f.envelope != nil {
			status, body = f.envelope(r)
		} else {
			body = fmt.Sprintf(`{"descripcion":"exito","estado":200,"datos":"%s/datos/%d","metadatos":"%s/metadatos"}`,
				f.server.URL, f.envelopes.Load(), f.server.URL)
		}
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		if f.retryAfter != "" {
			w.Header().Set("Retry-After", f.retryAfter)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))

	case strings.HasPrefix(r.URL.Path, "/datos/"):
		f.payloads.Add(1)
		contentType, body := "application/json", []byte(`[]`)
		if f.data != nil {
			contentType, body = f.data(r)
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)

	case r.URL.Path == "/metadatos":
		f.payloads.Add(1)
		w.Header().Set("Content-Type", "text/plain;charset=ISO-8859-15")
		_, _ = w.Write(latin9(f.t, `{
			"unidad_generadora": "Servicio del Banco Nacional de Datos Climatológicos",
			"descripcion": "Climatologías diarias",
			"formato": "application/json",
			"campos": [
				{"id": "fecha", "descripcion": "fecha del dia (AAAA-MM-DD)", "tipo_datos": "string", "requerido": true},
				{"id": "velmedia", "descripcion": "Velocidad media del viento", "tipo_datos": "float", "unidad": "m/s", "requerido": false}
			]
		}`))

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAEMET) requestedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakeAEMET) client(registry *resilience.Registry) *aemet.Client {
	return aemet.NewClient(aemet.ClientConfig{
		APIKey:     testAPIKey,
		BaseURL:    f.server.URL,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("test")),
		Registry:   registry,
		Logger:     zerolog.Nop(),
	})
}

func latin9(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.ISO8859_15.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func mustQuery(t *testing.T, station, start, end string) climate.Query {
	t.Helper()
	q, err := climate.NewQuery(station, start, end)
	require.NoError(t, err)
	return q
}

func TestNewClient_Defaults(t *testing.T) {
	client := aemet.NewClient(aemet.ClientConfig{APIKey: testAPIKey})

	assert.Equal(t, aemet.DefaultBaseURL, client.BaseURL())
	assert.Equal(t, aemet.ProviderName, client.Name())
}

func TestClient_GetResponse(t *testing.T) {
	f := newFakeAEMET(t)
	client := f.client(nil)

	resp, err := client.GetResponse(context.Background(), aemet.StationInventoryEndpoint(f.server.URL, testAPIKey))
	require.NoError(t, err)

	assert.Equal(t, "exito", resp.Description)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, f.server.URL+"/datos/1", resp.DataURL)
	assert.Equal(t, f.server.URL+"/metadatos", resp.MetadataURL)
	assert.Equal(t, int32(0), f.payloads.Load(), "envelope fetch does not follow datos")
}

func TestClient_GetResponse_APIError(t *testing.T) {
	f := newFakeAEMET(t)
	f.envelope = func(*http.Request) (int, string) {
		return http.StatusUnauthorized, `{"descripcion":"API key invalido","estado":401}`
	}
	registry := resilience.NewRegistry()
	client := f.client(registry)

	_, err := client.GetResponse(context.Background(), aemet.StationInventoryEndpoint(f.server.URL, testAPIKey))

	var apiErr *aemet.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "API key invalido", apiErr.Description)
	assert.False(t, apiErr.IsNoData())

	health, ok := registry.Health(aemet.ProviderName)
	require.True(t, ok)
	assert.False(t, health.LastFailure.IsZero())
	assert.Contains(t, health.LastError, "API key invalido")
}

func TestClient_GetResponse_EnvelopeStatusWinsOverHTTPStatus(t *testing.T) {
	f := newFakeAEMET(t)
	f.envelope = func(*http.Request) (int, string) {
		return http.StatusOK, `{"descripcion":"Limite de peticiones excedido","estado":429}`
	}
	client := f.client(nil)

	_, err := client.GetResponse(context.Background(), aemet.StationInventoryEndpoint(f.server.URL, testAPIKey))

	var apiErr *aemet.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.Status)
}

func TestClient_GetResponse_Throttled(t *testing.T) {
	f := newFakeAEMET(t)
	f.retryAfter = "30"
	f.envelope = func(*http.Request) (int, string) {
		return http.StatusTooManyRequests, `{"descripcion":"Limite de peticiones o caudal por minuto excedido","estado":429}`
	}
	registry := resilience.NewRegistry()
	client := aemet.NewClient(aemet.ClientConfig{
		APIKey:     testAPIKey,
		BaseURL:    f.server.URL,
		HTTPClient: resilience.NewClient(resilience.ClientConfig{Name: "test", RetryTooManyRequests: false}),
		Registry:   registry,
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetResponse(context.Background(), aemet.StationInventoryEndpoint(f.server.URL, testAPIKey))

	var apiErr *aemet.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 30*time.Second, apiErr.RetryAfter)

	d, ok := aemet.Throttled(err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	health, ok := registry.Health(aemet.ProviderName)
	require.True(t, ok)
	assert.Equal(t, uint64(1), health.Throttled)
	assert.True(t, health.LastFailure.IsZero(), "throttling is not a failure")
	assert.Equal(t, resilience.StatusDegraded, registry.Status())
}

func TestThrottled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
		ok   bool
	}{
		{"envelope 429", &aemet.APIError{Status: 429, RetryAfter: time.Minute}, time.Minute, true},
		{"plain 429", fmt.Errorf("wrapped: %w", &aemet.StatusError{StatusCode: 429}), 0, true},
		{"envelope 401", &aemet.APIError{Status: 401}, 0, false},
		{"plain 503", &aemet.StatusError{StatusCode: 503}, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := aemet.Throttled(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestClient_GetResponse_NotAnEnvelope(t *testing.T) {
	f := newFakeAEMET(t)
	f.envelope = func(*http.Request) (int, string) {
		return http.StatusForbidden, `<html>forbidden</html>`
	}
	client := f.client(nil)

	_, err := client.GetResponse(context.Background(), aemet.StationInventoryEndpoint(f.server.URL, testAPIKey))
	var statusErr *aemet.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "unexpected status code: 403")
}

func TestClient_MissingAPIKey(t *testing.T) {
	f := newFakeAEMET(t)
	client := aemet.NewClient(aemet.ClientConfig{BaseURL: f.server.URL, Logger: zerolog.Nop()})

	_, err := client.FetchDailyClimate(context.Background(), mustQuery(t, "6297", "2019-10-01", "2019-10-31"))
	assert.ErrorIs(t, err, aemet.ErrMissingAPIKey)
	assert.Equal(t, int32(0), f.envelopes.Load())
}

func TestClient_FetchDailyClimate(t *testing.T) {
	f := newFakeAEMET(t)
	f.data = func(*http.Request) (string, []byte) {
		return "text/plain;charset=ISO-8859-15", latin9(t, `[
			{"fecha":"2019-10-01","indicativo":"6297","nombre":"MÁLAGA AEROPUERTO","velmedia":"3,6","racha":"13,3","dir":"27"},
			{"fecha":"2019-10-02","indicativo":"6297","nombre":"MÁLAGA AEROPUERTO","velmedia":"2,5"}
		]`)
	}
	registry := resilience.NewRegistry()
	client := f.client(registry)

	records, err := client.FetchDailyClimate(context.Background(), mustQuery(t, "6297", "2019-10-01", "2019-10-31"))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "MÁLAGA AEROPUERTO", records[0]["nombre"])
	assert.Equal(t, "3,6", records[0]["velmedia"])
	assert.Equal(t, "27", records[0]["dir"])
	assert.Equal(t,
		[]string{"/valores/climatologicos/diarios/datos/fechaini/2019-10-01T00:00:00UTC/fechafin/2019-10-31T23:59:59UTC/estacion/6297/"},
		f.requestedPaths())

	health, ok := registry.Health(aemet.ProviderName)
	require.True(t, ok)
	assert.False(t, health.LastSuccess.IsZero())
	assert.True(t, health.LastFailure.IsZero())
}

func TestClient_FetchDailyClimate_NoData(t *testing.T) {
	f := newFakeAEMET(t)
	f.envelope = func(*http.Request) (int, string) {
		return http.StatusNotFound, `{"descripcion":"No hay datos que satisfagan esos criterios","estado":404}`
	}
	client := f.client(nil)

	records, err := client.FetchDailyClimate(context.Background(), mustQuery(t, "6297", "2019-10-01", "2019-10-31"))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, int32(0), f.payloads.Load())
}

func TestClient_FetchDailyClimate_SpanTooLarge(t *testing.T) {
	f := newFakeAEMET(t)
	client := f.client(nil)

	_, err := client.FetchDailyClimate(context.Background(), mustQuery(t, "6297", "1990-01-01", "2009-10-05"))

	var spanErr *climate.SpanTooLargeError
	require.ErrorAs(t, err, &spanErr)
	assert.Equal(t, int32(0), f.envelopes.Load(), "span is checked before any request")
}

func TestClient_FetchDailyClimate_BadPayload(t *testing.T) {
	f := newFakeAEMET(t)
	f.data = func(*http.Request) (string, []byte) {
		return "application/json", []byte(`{"not":"a list"`)
	}
	client := f.client(nil)

	_, err := client.FetchDailyClimate(context.Background(), mustQuery(t, "6297", "2019-10-01", "2019-10-31"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode payload")
}

func TestClient_DailyClimate_SplitsLongQueries(t *testing.T) {
	f := newFakeAEMET(t)
	f.data = func(r *http.Request) (string, []byte) {
		body, _ := json.Marshal([]map[string]string{{"fecha": "chunk" + strings.TrimPrefix(r.URL.Path, "/datos/")}})
		return "application/json", body
	}
	client := f.client(nil)

	var fechas []string
	for rec, err := range client.DailyClimate(context.Background(), mustQuery(t, "6297", "1990-01-01", "2009-10-05")) {
		require.NoError(t, err)
		fechas = append(fechas, rec["fecha"])
	}

	assert.Equal(t, []string{"chunk1", "chunk2", "chunk3", "chunk4"}, fechas)
	paths := f.requestedPaths()
	require.Len(t, paths, 4)
	assert.Contains(t, paths[0], "/fechaini/1990-01-01T00:00:00UTC/fechafin/1994-12-31T23:59:59UTC/")
	assert.Contains(t, paths[3], "/fechaini/2004-12-31T00:00:00UTC/fechafin/2009-10-05T23:59:59UTC/")
}

func TestClient_DailyClimate_NoDataChunkContinues(t *testing.T) {
	f := newFakeAEMET(t)
	f.envelope = func(*http.Request) (int, string) {
		if f.envelopes.Load() == 2 {
			return http.StatusNotFound, `{"descripcion":"No hay datos que satisfagan esos criterios","estado":404}`
		}
		return http.StatusOK, fmt.Sprintf(`{"descripcion":"exito","estado":200,"datos":"%s/datos/%d"}`,
			f.server.URL, f.envelopes.Load())
	}
	f.data = func(r *http.Request) (string, []byte) {
		return "application/json", []byte(`[{"fecha":"` + r.URL.Path + `"}]`)
	}
	client := f.client(nil)

	records, err := climate.CollectAll(context.Background(), mustQuery(t, "6297", "1990-01-01", "2009-10-05"), client)
	require.NoError(t, err)

	assert.Len(t, records, 3)
	assert.Equal(t, int32(4), f.envelopes.Load())
	assert.Equal(t, int32(3), f.payloads.Load())
}

func TestClient_DailyClimateMetadata(t *testing.T) {
	f := newFakeAEMET(t)
	client := f.client(nil)

	md, err := client.DailyClimateMetadata(context.Background(), mustQuery(t, "6297", "2019-10-01", "2019-10-31"))
	require.NoError(t, err)

	assert.Equal(t, "Servicio del Banco Nacional de Datos Climatológicos", md.GeneratingUnit)
	assert.Equal(t, "Climatologías diarias", md.Description)
	require.Len(t, md.Fields, 2)

	field, ok := md.Field("velmedia")
	require.True(t, ok)
	assert.Equal(t, "m/s", field.Unit)
	assert.False(t, field.Required)

	_, ok = md.Field("racha")
	assert.False(t, ok)
}

func TestClient_Metadata_MissingURL(t *testing.T) {
	f := newFakeAEMET(t)
	f.envelope = func(*http.Request) (int, string) {
		return http.StatusOK, `{"descripcion":"exito","estado":200,"datos":"x"}`
	}
	client := f.client(nil)

	_, err := client.Metadata(context.Background(), aemet.StationInventoryEndpoint(f.server.URL, testAPIKey))
	assert.ErrorIs(t, err, aemet.ErrMissingMetadataURL)
}

func TestIsNoData(t *testing.T) {
	assert.True(t, aemet.IsNoData(fmt.Errorf("wrapped: %w", &aemet.APIError{Description: aemet.NoDataDescription, Status: 404})))
	assert.False(t, aemet.IsNoData(&aemet.APIError{Description: "API key invalido", Status: 401}))
	assert.False(t, aemet.IsNoData(nil))
}

func TestAPIError_Error(t *testing.T) {
	err := &aemet.APIError{Description: "API key invalido", Status: 401}
	assert.Equal(t, "aemet api error 401: API key invalido", err.Error())
}
