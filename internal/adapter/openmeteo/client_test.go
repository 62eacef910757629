package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_DailyForecast_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "40.5", q.Get("latitude"))
		assert.Equal(t, "-111.9", q.Get("longitude"))
		assert.Equal(t, dailyParams, q.Get("daily"))
		assert.Equal(t, "auto", q.Get("timezone"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{
			"latitude": 40.5, "longitude": -111.9,
			"daily": {
				"time": ["2025-10-03"],
				"temperature_2m_mean": [5.4],
				"relative_humidity_2m_mean": [48],
				"wind_speed_10m_max": [16.6],
				"precipitation_sum": [0.0]
			}
		}`)
	}))
	defer srv.Close()

	w, err := testClient(srv.URL).DailyForecast(context.Background(), 40.5, -111.9)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC), w.Date)
	assert.Equal(t, 40.5, w.Lat)
	require.True(t, w.Complete())
	assert.Equal(t, 5.4, *w.TempMeanC)
	assert.Equal(t, 48.0, *w.RHMeanPct)
	assert.Equal(t, 16.6, *w.WindMaxKmh)
	assert.Equal(t, 0.0, *w.PrecipMm)
}

func TestClient_DailyForecast_NullFieldsStayNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"daily": {
			"time": ["2025-10-03"],
			"temperature_2m_mean": [null],
			"relative_humidity_2m_mean": [30],
			"wind_speed_10m_max": [],
			"precipitation_sum": [1.2]
		}}`)
	}))
	defer srv.Close()

	w, err := testClient(srv.URL).DailyForecast(context.Background(), 40.5, -111.9)
	require.NoError(t, err)
	assert.Nil(t, w.TempMeanC)
	assert.Nil(t, w.WindMaxKmh)
	assert.Equal(t, []string{"temperature_mean_c", "wind_speed_max_kmh"}, w.Missing())
}

func TestClient_DailyForecast_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).DailyForecast(context.Background(), 40.5, -111.9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_DailyForecast_EmptyDaily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"daily": {"time": []}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).DailyForecast(context.Background(), 40.5, -111.9)
	require.ErrorIs(t, err, ErrNoForecast)
}

func TestClient_DailyForecast_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.DailyForecast(context.Background(), 40.5, -111.9)
	require.Error(t, err)
}
