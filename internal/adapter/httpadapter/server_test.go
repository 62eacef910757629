package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockPayloads struct {
	p  output.Payload
	ok bool
}

func (m *mockPayloads) Latest() (output.Payload, bool) { return m.p, m.ok }

func newTestServer(readyErr error, payloads *mockPayloads) *httpadapter.Server {
	if payloads == nil {
		payloads = &mockPayloads{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, payloads,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(srv http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(newTestServer(errors.New("no forecast payload available yet"), nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPayloadEndpoint(t *testing.T) {
	generated := time.Date(2025, time.August, 14, 6, 0, 0, 0, time.UTC)
	payloads := &mockPayloads{ok: true, p: output.Payload{
		GeneratedAt: generated,
		Scorer:      "formula",
		TotalCells:  1,
		Heat:        []output.HeatPoint{{Lat: 40.5, Lon: -111.9, Score: 0.62}},
	}}

	rec := get(newTestServer(nil, payloads), "/api/payload")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, generated.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))

	var got output.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "formula", got.Scorer)
	assert.Equal(t, payloads.p.Heat, got.Heat)
}

func TestPayloadEndpointBeforeFirstRun(t *testing.T) {
	rec := get(newTestServer(nil, nil), "/api/payload")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayloadEndpointRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
