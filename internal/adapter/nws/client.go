// Package nws looks up the latest surface observation near a point through
// the National Weather Service API (points → observation stations → latest
// observation).
package nws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public NWS API.
const DefaultBaseURL = "https://api.weather.gov"

// ErrNoStation is returned when the point has no observation station.
var ErrNoStation = errors.New("no observation station for point")

// Options configures the client.
type Options struct {
	BaseURL   string
	UserAgent string // NWS rejects requests without one
	Timeout   time.Duration
	// Rate is the sustained request rate in requests per second.
	Rate float64
}

// Client implements domain.ObservationSource using the NWS API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an NWS client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Rate <= 0 {
		opts.Rate = 5
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), 1),
		metrics:   metrics,
		logger:    logger,
	}
}

// Observation returns the latest observation of the station nearest the point,
// recorded against date. The API only serves recent observations, so date is
// a label rather than a query parameter. Values the station did not report
// are nil.
func (c *Client) Observation(ctx context.Context, lat, lon float64, date time.Time) (domain.DailyWeather, error) {
	start := time.Now()
	w, err := c.observation(ctx, lat, lon)
	c.metrics.WeatherAPIDuration.WithLabelValues(domain.SourceObservation).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherFetches.WithLabelValues(domain.SourceObservation, "error").Inc()
		return domain.DailyWeather{}, err
	}

	w.Date = domain.Truncate(date)
	w.Lat, w.Lon = lat, lon
	outcome := "success"
	if !w.Complete() {
		outcome = "missing"
	}
	c.metrics.WeatherFetches.WithLabelValues(domain.SourceObservation, outcome).Inc()
	return w, nil
}

func (c *Client) observation(ctx context.Context, lat, lon float64) (domain.DailyWeather, error) {
	var pt pointResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon), &pt); err != nil {
		return domain.DailyWeather{}, fmt.Errorf("points lookup: %w", err)
	}
	if pt.Properties.ObservationStations == "" {
		return domain.DailyWeather{}, ErrNoStation
	}

	var st stationsResponse
	if err := c.getJSON(ctx, pt.Properties.ObservationStations, &st); err != nil {
		return domain.DailyWeather{}, fmt.Errorf("stations lookup: %w", err)
	}
	if len(st.ObservationStations) == 0 {
		return domain.DailyWeather{}, ErrNoStation
	}

	var obs observationResponse
	if err := c.getJSON(ctx, st.ObservationStations[0]+"/observations/latest", &obs); err != nil {
		return domain.DailyWeather{}, fmt.Errorf("latest observation: %w", err)
	}

	p := obs.Properties
	precip := p.PrecipitationLast3Hours.Value
	if precip == nil {
		precip = p.PrecipitationLastHour.Value
	}
	return domain.DailyWeather{
		TempMeanC:  p.Temperature.Value,
		RHMeanPct:  p.RelativeHumidity.Value,
		WindMaxKmh: p.WindSpeed.Value,
		PrecipMm:   precip,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("nws API error: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// NWS API response types.

type pointResponse struct {
	Properties struct {
		ObservationStations string `json:"observationStations"`
	} `json:"properties"`
}

type stationsResponse struct {
	ObservationStations []string `json:"observationStations"`
}

type quantity struct {
	Value    *float64 `json:"value"`
	UnitCode string   `json:"unitCode"`
}

type observationResponse struct {
	Properties struct {
		Temperature             quantity `json:"temperature"`      // degC
		RelativeHumidity        quantity `json:"relativeHumidity"` // percent
		WindSpeed               quantity `json:"windSpeed"`        // km/h
		PrecipitationLastHour   quantity `json:"precipitationLastHour"`
		PrecipitationLast3Hours quantity `json:"precipitationLast3Hours"`
	} `json:"properties"`
}
