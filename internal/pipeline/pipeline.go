// Package pipeline runs the batch stages of the risk model: detection
// ingestion, ignition labels, cell proximity, detection weather and the daily
// forecast. Every stage reads the tables of earlier stages from the store and
// replaces its own output wholesale.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/features"
	"github.com/couchcryptid/wildfire-risk-etl/internal/grid"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/jonboulle/clockwork"
)

// Stage names used in logs and metric labels.
const (
	StageIngest    = "ingest"
	StageLabels    = "labels"
	StageProximity = "proximity"
	StageWeather   = "weather"
	StageForecast  = "forecast"
)

// ErrNoDetections is returned when the label stage finds no detections inside
// the grid bounds.
var ErrNoDetections = errors.New("no detections inside the grid bounds")

// ErrRunInProgress is returned when a forecast is requested while another is
// still running.
var ErrRunInProgress = errors.New("forecast run already in progress")

// Store holds the pipeline's tables.
type Store interface {
	ReplaceDetections(ctx context.Context, dets []domain.FireDetection) error
	Detections(ctx context.Context, box domain.BoundingBox) ([]domain.FireDetection, error)
	ReplaceLabels(ctx context.Context, t *grid.LabelTable) error
	ReplaceProximity(ctx context.Context, cells []domain.CellProximity) error
	ProximityGrid(ctx context.Context) ([]domain.CellProximity, error)
	ReplaceDetectionWeather(ctx context.Context, rows []domain.DetectionWeather) error
}

// PayloadSink receives the payload of every forecast run.
type PayloadSink interface {
	Name() string
	Publish(ctx context.Context, p output.Payload) error
}

// Options are the run parameters shared by the stages.
type Options struct {
	GridBounds   domain.BoundingBox
	GridStep     float64
	Proximity    features.ProximityConfig
	ForecastLat  float64
	ForecastLon  float64
	Threshold    float64
	MaxMarkers   int
	Seed         uint64
	TopN         int
	IngestBounds domain.BoundingBox
}

// Deps are the collaborators of a Pipeline. Incidents and Sinks are optional.
type Deps struct {
	Store     Store
	Forecast  domain.ForecastSource
	Incidents domain.IncidentSource
	Sinks     []PayloadSink
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Pipeline runs the stages against one store.
type Pipeline struct {
	opts      Options
	store     Store
	forecast  domain.ForecastSource
	incidents domain.IncidentSource
	sinks     []PayloadSink
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	runMu  sync.Mutex
	latest atomic.Pointer[output.Payload]
}

// New creates a Pipeline.
func New(opts Options, deps Deps) *Pipeline {
	if opts.GridStep == 0 {
		opts.GridStep = domain.DefaultStep
	}
	if opts.TopN == 0 {
		opts.TopN = 10
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		opts:      opts,
		store:     deps.Store,
		forecast:  deps.Forecast,
		incidents: deps.Incidents,
		sinks:     deps.Sinks,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
}

// CheckReadiness returns nil once a payload is available, either produced by
// a forecast run or restored at startup.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.latest.Load() == nil {
		return errors.New("no forecast payload available yet")
	}
	return nil
}

// Latest returns the most recent payload.
func (p *Pipeline) Latest() (output.Payload, bool) {
	pl := p.latest.Load()
	if pl == nil {
		return output.Payload{}, false
	}
	return *pl, true
}

// Restore makes a previously written payload the latest one.
func (p *Pipeline) Restore(pl output.Payload) {
	p.latest.Store(&pl)
}

// observe records the duration and completion time of a stage, or a failure
// attributed to source.
func (p *Pipeline) observe(stage string, start time.Time, err error) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(p.clock.Since(start).Seconds())
	if err != nil {
		source := "internal"
		var se *domain.SourceError
		if errors.As(err, &se) {
			source = se.Source
		}
		p.metrics.StageFailures.WithLabelValues(stage, source).Inc()
		return
	}
	p.metrics.LastRunTimestamp.WithLabelValues(stage).Set(float64(p.clock.Now().Unix()))
}

// Ingest clips detections to the ingestion bounds and replaces the detection
// table.
func (p *Pipeline) Ingest(ctx context.Context, dets []domain.FireDetection, stats domain.IngestStats) (err error) {
	start := p.clock.Now()
	defer func() { p.observe(StageIngest, start, err) }()

	kept := dets
	if p.opts.IngestBounds != (domain.BoundingBox{}) {
		var clipped int
		kept, clipped = domain.ClipDetections(dets, p.opts.IngestBounds)
		stats.OutOfBounds += clipped
		stats.Accepted -= clipped
	}
	if err := p.store.ReplaceDetections(ctx, kept); err != nil {
		return domain.Unavailable(domain.SourceStore, err)
	}

	p.metrics.DetectionsIngested.Add(float64(len(kept)))
	p.metrics.DetectionsDropped.WithLabelValues("out_of_bounds").Add(float64(stats.OutOfBounds))
	p.metrics.DetectionsDropped.WithLabelValues("low_confidence").Add(float64(stats.LowConfidence))
	p.metrics.DetectionsDropped.WithLabelValues("malformed").Add(float64(stats.Malformed))
	p.logger.Info("detections ingested",
		"read", stats.Read,
		"accepted", len(kept),
		"out_of_bounds", stats.OutOfBounds,
		"low_confidence", stats.LowConfidence,
		"malformed", stats.Malformed,
	)
	return nil
}

// Labels rebuilds the grid × date ignition label table from the detections
// inside the grid bounds. The date range spans the first to the last
// detection.
func (p *Pipeline) Labels(ctx context.Context) (stats grid.LabelStats, err error) {
	start := p.clock.Now()
	defer func() { p.observe(StageLabels, start, err) }()

	dets, err := p.store.Detections(ctx, p.opts.GridBounds)
	if err != nil {
		return grid.LabelStats{}, domain.Unavailable(domain.SourceStore, err)
	}
	from, to, ok := grid.DateSpan(dets)
	if !ok {
		return grid.LabelStats{}, ErrNoDetections
	}
	cells, err := grid.Generate(p.opts.GridBounds, p.opts.GridStep)
	if err != nil {
		return grid.LabelStats{}, fmt.Errorf("generate grid: %w", err)
	}
	dates, err := grid.DateRange(from, to)
	if err != nil {
		return grid.LabelStats{}, err
	}

	table, stats, err := grid.Labels(dets, cells, dates, p.opts.GridStep)
	if err != nil {
		return grid.LabelStats{}, fmt.Errorf("build labels: %w", err)
	}
	if err := p.store.ReplaceLabels(ctx, table); err != nil {
		return grid.LabelStats{}, domain.Unavailable(domain.SourceStore, err)
	}

	p.metrics.LabelRows.Set(float64(stats.Rows))
	p.metrics.LabelPositives.Set(float64(stats.Positives))
	p.logger.Info("labels built",
		"cells", len(cells),
		"dates", len(dates),
		"from", from.Format(time.DateOnly),
		"to", to.Format(time.DateOnly),
		"rows", stats.Rows,
		"positives", stats.Positives,
		"unmatched_detections", stats.UnmatchedDetected,
	)
	return stats, nil
}

// Proximity rebuilds the per-cell proximity table against refs.
func (p *Pipeline) Proximity(ctx context.Context, refs features.References) (cells []domain.CellProximity, err error) {
	start := p.clock.Now()
	defer func() { p.observe(StageProximity, start, err) }()

	grd, err := grid.Generate(p.opts.GridBounds, p.opts.GridStep)
	if err != nil {
		return nil, fmt.Errorf("generate grid: %w", err)
	}
	cells, err = features.Proximity(grd, refs, p.opts.Proximity)
	if err != nil {
		return nil, fmt.Errorf("compute proximity: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.store.ReplaceProximity(ctx, cells); err != nil {
		return nil, domain.Unavailable(domain.SourceStore, err)
	}

	p.metrics.ProximityCells.Set(float64(len(cells)))
	p.logger.Info("proximity built", "cells", len(cells), "roads", len(refs.Roads), "cities", len(refs.Cities))
	return cells, nil
}
