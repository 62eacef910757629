package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/features"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/couchcryptid/wildfire-risk-etl/internal/risk"
)

// Forecast scores every proximity cell for today's forecast with scorer,
// builds the payload and hands it to every sink. Only one run executes at a
// time; a concurrent call returns ErrRunInProgress.
//
// A missing proximity table, an unavailable forecast and an unusable model
// are SourceErrors. The incident feed is best effort. All sinks are tried;
// their errors are joined.
func (p *Pipeline) Forecast(ctx context.Context, scorer risk.Scorer) (pl output.Payload, err error) {
	if !p.runMu.TryLock() {
		return output.Payload{}, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer func() { p.observe(StageForecast, start, err) }()

	cells, err := p.store.ProximityGrid(ctx)
	if err != nil {
		return output.Payload{}, domain.Unavailable(domain.SourceStore, err)
	}
	if len(cells) == 0 {
		return output.Payload{}, domain.Unavailable(domain.SourceStore, errors.New("proximity table is empty"))
	}

	obs, err := p.forecast.DailyForecast(ctx, p.opts.ForecastLat, p.opts.ForecastLon)
	if err != nil {
		return output.Payload{}, domain.Unavailable(domain.SourceForecast, err)
	}
	if obs.Date.IsZero() {
		obs.Date = domain.Truncate(p.clock.Now())
	}
	day, err := features.Daily(obs)
	if err != nil {
		return output.Payload{}, domain.Unavailable(domain.SourceForecast, err)
	}
	p.logger.Info("forecast loaded",
		"date", day.Date.Format(time.DateOnly),
		"temperature_c", *obs.TempMeanC,
		"humidity_pct", *obs.RHMeanPct,
		"wind_kmh", *obs.WindMaxKmh,
		"precip_mm", *obs.PrecipMm,
		"vpd", day.VPDProxy,
	)

	batch := domain.ScoringBatch{Cells: cells, Day: day}
	scores, err := scorer.Score(ctx, batch)
	if err != nil {
		if errors.Is(err, risk.ErrModelUnavailable) || errors.Is(err, risk.ErrFeatureMismatch) {
			return output.Payload{}, domain.Unavailable(domain.SourceModel, err)
		}
		return output.Payload{}, fmt.Errorf("score cells: %w", err)
	}

	scored := make([]domain.ScoredCell, len(cells))
	for i, c := range cells {
		scored[i] = domain.ScoredCell{Cell: c.Cell, Score: scores[i], Features: risk.Snapshot(scorer, batch, i)}
	}

	incidents := p.activeIncidents(ctx)

	pl = output.BuildPayload(scored, obs, day, incidents, output.PayloadOptions{
		Scorer:     scorer.Name(),
		Threshold:  p.opts.Threshold,
		MaxMarkers: p.opts.MaxMarkers,
		Seed:       p.opts.Seed,
		Now:        p.clock.Now(),
	})

	p.metrics.CellsScored.WithLabelValues(scorer.Name()).Add(float64(len(scored)))
	p.metrics.HighRiskCells.Set(float64(pl.HighRisk))
	p.logger.Info("forecast scored",
		"scorer", scorer.Name(),
		"cells", pl.TotalCells,
		"high_risk", pl.HighRisk,
		"threshold", p.opts.Threshold,
		"markers", len(pl.Markers),
		"incidents", len(incidents),
	)
	for i, c := range output.TopN(scored, p.opts.TopN) {
		p.logger.Debug("top risk cell", "rank", i+1, "lat", c.Cell.Lat, "lon", c.Cell.Lon, "score", c.Score)
	}

	p.latest.Store(&pl)
	return pl, p.publish(ctx, pl)
}

func (p *Pipeline) activeIncidents(ctx context.Context) []domain.Incident {
	if p.incidents == nil {
		return nil
	}
	incidents, err := p.incidents.ActiveIncidents(ctx)
	if err != nil {
		p.logger.Warn("incident feed unavailable, continuing without incidents", "error", err)
		return nil
	}
	return incidents
}

func (p *Pipeline) publish(ctx context.Context, pl output.Payload) error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Publish(ctx, pl); err != nil {
			p.logger.Error("payload sink failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		p.metrics.PayloadsSent.WithLabelValues(s.Name()).Inc()
	}
	return errors.Join(errs...)
}
