// Package inciweb lists currently active wildfire incidents from the InciWeb
// feed.
package inciweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// DefaultURL is the public InciWeb fires endpoint.
const DefaultURL = "https://inciweb.wildfire.gov/api/v1/fires"

// activeStatuses are the fire statuses shown on the map.
var activeStatuses = []string{"Active", "Contained", "Controlled"}

// Options configures the client.
type Options struct {
	URL     string
	State   string
	MaxAge  time.Duration // incidents started earlier than now-MaxAge are dropped
	Timeout time.Duration
}

// Client implements domain.IncidentSource.
type Client struct {
	httpClient *http.Client
	opts       Options
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an InciWeb client.
func NewClient(opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// ActiveIncidents returns the incidents in the configured state with an
// active status, coordinates, and a start date inside the age window.
// Entries with an unparseable start date are skipped.
func (c *Client) ActiveIncidents(ctx context.Context) ([]domain.Incident, error) {
	fires, err := c.fetch(ctx)
	if err != nil {
		c.metrics.IncidentFetchErrors.Inc()
		return nil, err
	}

	today := domain.Truncate(c.clock.Now())
	earliest := domain.Truncate(today.Add(-c.opts.MaxAge))
	var out []domain.Incident
	skipped := 0
	for _, f := range fires {
		if f.State != c.opts.State || !slices.Contains(activeStatuses, f.FireStatus) {
			continue
		}
		if !f.Latitude.valid || !f.Longitude.valid {
			continue
		}
		started, err := time.Parse(time.DateOnly, f.StartedOnDate)
		if err != nil {
			skipped++
			continue
		}
		if started.Before(earliest) || started.After(today) {
			continue
		}
		name := f.FireName
		if name == "" {
			name = "Unknown"
		}
		out = append(out, domain.Incident{
			Lat:     f.Latitude.value,
			Lon:     f.Longitude.value,
			Name:    name,
			Acres:   f.AcresBurned.value,
			Status:  f.FireStatus,
			Started: started,
		})
	}
	c.logger.Info("active incidents fetched", "total", len(fires), "kept", len(out), "bad_dates", skipped)
	return out, nil
}

func (c *Client) fetch(ctx context.Context) ([]fire, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("incident request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("inciweb API error: status %d: %s", resp.StatusCode, body)
	}

	var fr response
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return fr.Fires, nil
}

// InciWeb response types.

type response struct {
	Fires []fire `json:"fires"`
}

type fire struct {
	State         string    `json:"state"`
	FireStatus    string    `json:"fireStatus"`
	FireName      string    `json:"fireName"`
	Latitude      flexFloat `json:"latitude"`
	Longitude     flexFloat `json:"longitude"`
	AcresBurned   flexFloat `json:"acresBurned"`
	StartedOnDate string    `json:"startedOnDate"`
}

// flexFloat decodes a number that the feed sends either as a JSON number or
// as a string. null, "" and 0 leave it invalid.
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil //nolint:nilerr // a malformed value reads as absent
	}
	f.value, f.valid = v, v != 0
	return nil
}
