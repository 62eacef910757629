// Package openmeteo fetches daily point forecasts from the Open-Meteo API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
)

// DefaultBaseURL is the public forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

const dailyParams = "temperature_2m_mean,relative_humidity_2m_mean,wind_speed_10m_max,precipitation_sum"

// ErrNoForecast is returned when the response carries no daily rows.
var ErrNoForecast = errors.New("forecast response has no daily values")

// Client implements domain.ForecastSource using the Open-Meteo API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// DailyForecast returns today's daily aggregates at the point. Fields the API
// reports as null are left nil.
func (c *Client) DailyForecast(ctx context.Context, lat, lon float64) (domain.DailyWeather, error) {
	params := url.Values{
		"latitude":      {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":     {strconv.FormatFloat(lon, 'f', -1, 64)},
		"daily":         {dailyParams},
		"timezone":      {"auto"},
		"forecast_days": {"1"},
	}

	start := time.Now()
	w, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.WeatherAPIDuration.WithLabelValues(domain.SourceForecast).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherFetches.WithLabelValues(domain.SourceForecast, "error").Inc()
		return domain.DailyWeather{}, err
	}

	w.Lat, w.Lon = lat, lon
	outcome := "success"
	if !w.Complete() {
		outcome = "missing"
	}
	c.metrics.WeatherFetches.WithLabelValues(domain.SourceForecast, outcome).Inc()
	c.logger.Debug("forecast fetched", "lat", lat, "lon", lon, "date", w.Date.Format(time.DateOnly), "complete", w.Complete())
	return w, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.DailyWeather, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.DailyWeather{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.DailyWeather{}, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.DailyWeather{}, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	var fr response
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return domain.DailyWeather{}, fmt.Errorf("decode response: %w", err)
	}
	if len(fr.Daily.Time) == 0 {
		return domain.DailyWeather{}, ErrNoForecast
	}

	date, err := time.Parse(time.DateOnly, fr.Daily.Time[0])
	if err != nil {
		return domain.DailyWeather{}, fmt.Errorf("parse forecast date: %w", err)
	}
	return domain.DailyWeather{
		Date:       date,
		TempMeanC:  first(fr.Daily.TemperatureMean),
		RHMeanPct:  first(fr.Daily.RelativeHumidityMean),
		WindMaxKmh: first(fr.Daily.WindSpeedMax),
		PrecipMm:   first(fr.Daily.PrecipitationSum),
	}, nil
}

func first(v []*float64) *float64 {
	if len(v) == 0 {
		return nil
	}
	return v[0]
}

// Open-Meteo API response types.

type response struct {
	Daily daily `json:"daily"`
}

type daily struct {
	Time                 []string   `json:"time"`
	TemperatureMean      []*float64 `json:"temperature_2m_mean"`
	RelativeHumidityMean []*float64 `json:"relative_humidity_2m_mean"`
	WindSpeedMax         []*float64 `json:"wind_speed_10m_max"` // km/h by default
	PrecipitationSum     []*float64 `json:"precipitation_sum"`
}
