package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// Payload is everything a map renderer needs for one forecast run.
type Payload struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	ForecastDate time.Time            `json:"forecast_date"`
	Scorer       string               `json:"scorer"`
	Threshold    float64              `json:"threshold"`
	Weather      domain.DailyWeather  `json:"weather"`
	Features     domain.DailyFeatures `json:"features"`
	TotalCells   int                  `json:"total_cells"`
	HighRisk     int                  `json:"high_risk_cells"`
	Heat         []HeatPoint          `json:"heat"`
	Markers      []Marker             `json:"markers"`
	Incidents    []domain.Incident    `json:"incidents,omitempty"`
}

// PayloadOptions configures BuildPayload.
type PayloadOptions struct {
	Scorer     string
	Threshold  float64
	MaxMarkers int
	Seed       uint64
	Now        time.Time
}

// BuildPayload selects heat and markers from cells and packages them with the
// day's weather and any incidents. Incidents are optional; nil leaves the
// layer out.
func BuildPayload(cells []domain.ScoredCell, obs domain.DailyWeather, day domain.DailyFeatures, incidents []domain.Incident, opts PayloadOptions) Payload {
	heat, markers := SelectForDisplay(cells, opts.Threshold, opts.MaxMarkers, opts.Seed)
	return Payload{
		GeneratedAt:  opts.Now.UTC(),
		ForecastDate: day.Date,
		Scorer:       opts.Scorer,
		Threshold:    opts.Threshold,
		Weather:      obs,
		Features:     day,
		TotalCells:   len(cells),
		HighRisk:     CountAbove(cells, opts.Threshold),
		Heat:         heat,
		Markers:      markers,
		Incidents:    incidents,
	}
}

// WriteFile writes p as indented JSON to path, replacing any previous
// payload. The file is written next to path and renamed into place so a
// reader never sees a partial payload.
func WriteFile(path string, p Payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create payload dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".payload-*.json")
	if err != nil {
		return fmt.Errorf("create payload file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close payload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace payload: %w", err)
	}
	return nil
}

// ReadFile loads a payload written by WriteFile.
func ReadFile(path string) (Payload, error) {
	var p Payload
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read payload: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// FileSink writes every payload to one path.
type FileSink struct {
	Path string
}

// Name identifies the sink in logs and metrics.
func (s FileSink) Name() string {
	return "file"
}

// Publish implements pipeline.PayloadSink.
func (s FileSink) Publish(_ context.Context, p Payload) error {
	return WriteFile(s.Path, p)
}
