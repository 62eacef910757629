package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// WeatherJoin attaches weather to detections. Records it could not enrich are
// returned with empty weather and counted as failed.
type WeatherJoin func(ctx context.Context, dets []domain.FireDetection) ([]domain.DetectionWeather, domain.FetchStats, error)

// hitCounter is implemented by cached observation sources.
type hitCounter interface {
	Hits() int
}

// ObservationJoin looks up every detection at src one at a time. A failed
// lookup keeps the detection with empty weather. Cache hits count as
// successes.
func ObservationJoin(src domain.ObservationSource) WeatherJoin {
	return func(ctx context.Context, dets []domain.FireDetection) ([]domain.DetectionWeather, domain.FetchStats, error) {
		var stats domain.FetchStats
		hitsBefore := 0
		hc, cached := src.(hitCounter)
		if cached {
			hitsBefore = hc.Hits()
		}

		out := make([]domain.DetectionWeather, len(dets))
		for i, d := range dets {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			out[i].Detection = d
			w, err := src.Observation(ctx, d.Lat, d.Lon, d.AcqDate)
			if err != nil {
				stats.Failed++
				out[i].Weather = domain.DailyWeather{Date: domain.Truncate(d.AcqDate), Lat: d.Lat, Lon: d.Lon}
				continue
			}
			stats.Succeeded++
			out[i].Weather = w
		}
		if cached {
			stats.CacheHits = hc.Hits() - hitsBefore
		}
		return out, stats, nil
	}
}

// Weather joins the detections inside the grid bounds to weather with join
// and replaces the detection weather table.
func (p *Pipeline) Weather(ctx context.Context, join WeatherJoin) (stats domain.FetchStats, err error) {
	start := p.clock.Now()
	defer func() { p.observe(StageWeather, start, err) }()

	dets, err := p.store.Detections(ctx, p.opts.GridBounds)
	if err != nil {
		return stats, domain.Unavailable(domain.SourceStore, err)
	}
	rows, stats, err := join(ctx, dets)
	if err != nil {
		return stats, err
	}

	invalid := 0
	for i := range rows {
		if verr := rows[i].Weather.Validate(); verr != nil {
			invalid++
			p.logger.Debug("dropping invalid weather reading", "date", rows[i].Weather.Date.Format(time.DateOnly), "error", verr)
			rows[i].Weather = domain.DailyWeather{Date: rows[i].Weather.Date, Lat: rows[i].Weather.Lat, Lon: rows[i].Weather.Lon}
		}
	}
	if err := p.store.ReplaceDetectionWeather(ctx, rows); err != nil {
		return stats, domain.Unavailable(domain.SourceStore, err)
	}

	p.logger.Info("detection weather joined",
		"detections", len(dets),
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"cache_hits", stats.CacheHits,
		"invalid", invalid,
	)
	return stats, nil
}
