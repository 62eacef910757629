package main

import (
	"context"
	"fmt"

	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/noaa"
	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/nws"
	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

const (
	weatherArchive = "archive"
	weatherNWS     = "nws"
)

func (a *app) weatherCmd() *cobra.Command {
	var source, dir string
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Join detections to daily weather from a station archive or NWS observations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)
			p := a.newPipeline(store)

			switch source {
			case weatherArchive:
				if dir == "" {
					dir = a.cfg.WeatherArchiveDir
				}
				join, err := a.archiveJoin(cmd.Context(), dir)
				if err != nil {
					return err
				}
				_, err = p.Weather(cmd.Context(), join)
				return err
			case weatherNWS:
				return a.nwsWeather(cmd.Context(), p)
			default:
				return fmt.Errorf("unknown weather source %q (want %s or %s)", source, weatherArchive, weatherNWS)
			}
		},
	}
	cmd.Flags().StringVar(&source, "source", weatherArchive, "weather source: archive or nws")
	cmd.Flags().StringVar(&dir, "dir", "", "station archive directory (default WEATHER_ARCHIVE_DIR)")
	return cmd
}

func (a *app) archiveJoin(ctx context.Context, dir string) (pipeline.WeatherJoin, error) {
	archive, err := noaa.LoadArchive(ctx, dir, a.logger)
	if err != nil {
		return nil, domain.Unavailable(domain.SourceWeatherDir, err)
	}
	a.logger.Info("station archive loaded", "stations", len(archive.Stations), "station_days", archive.Len())
	return func(_ context.Context, dets []domain.FireDetection) ([]domain.DetectionWeather, domain.FetchStats, error) {
		rows, stats, err := noaa.JoinNearest(dets, archive)
		return rows, domain.FetchStats{Succeeded: stats.Matched, Failed: stats.Unmatched}, err
	}, nil
}

// nwsWeather looks every detection up against NWS. The response cache is
// loaded before and saved after the run so reruns skip known lookups.
func (a *app) nwsWeather(ctx context.Context, p *pipeline.Pipeline) error {
	client := nws.NewClient(nws.Options{
		BaseURL:   a.cfg.NWSBaseURL,
		UserAgent: a.cfg.NWSUserAgent,
		Timeout:   a.cfg.NWSTimeout,
		Rate:      a.cfg.NWSRate,
	}, a.metrics, a.logger)
	cached := nws.NewCachedObservations(client, a.cfg.NWSCacheTTL, a.metrics)

	n, err := cached.LoadFile(a.cfg.NWSCachePath)
	if err != nil {
		a.logger.Warn("observation cache not loaded", "path", a.cfg.NWSCachePath, "error", err)
	} else if n > 0 {
		a.logger.Info("observation cache loaded", "path", a.cfg.NWSCachePath, "entries", n)
	}

	_, runErr := p.Weather(ctx, pipeline.ObservationJoin(cached))

	if err := cached.SaveFile(a.cfg.NWSCachePath); err != nil {
		a.logger.Warn("observation cache not saved", "path", a.cfg.NWSCachePath, "error", err)
	}
	return runErr
}
