package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/inciweb"
	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/xgb"
	"github.com/couchcryptid/wildfire-risk-etl/internal/config"
	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/features"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"github.com/couchcryptid/wildfire-risk-etl/internal/pipeline"
	"github.com/couchcryptid/wildfire-risk-etl/internal/risk"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func newRootCmd() *cobra.Command {
	a := &app{clock: clockwork.NewRealClock()}
	root := &cobra.Command{
		Use:   "firerisk",
		Short: "Wildfire ignition risk pipeline",
		Long: `Builds the grid ignition labels and proximity features from satellite
fire detections, scores every grid cell against today's weather forecast and
publishes the risk payload.

Stages run in order: ingest, labels, proximity, then forecast (or serve).
Settings come from environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			slog.SetDefault(a.logger)
			a.metrics = observability.NewMetrics()
			return nil
		},
	}
	root.AddCommand(
		a.ingestCmd(),
		a.labelsCmd(),
		a.proximityCmd(),
		a.weatherCmd(),
		a.forecastCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) openStore() (*sqlite.Store, error) {
	store, err := sqlite.Open(a.cfg.DBPath)
	if err != nil {
		return nil, domain.Unavailable(domain.SourceStore, err)
	}
	return store, nil
}

func closeStore(store *sqlite.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}
}

func (a *app) newPipeline(store pipeline.Store, sinks ...pipeline.PayloadSink) *pipeline.Pipeline {
	deps := pipeline.Deps{
		Store:    store,
		Forecast: openmeteo.NewClient(a.cfg.ForecastURL, a.cfg.ForecastTimeout, a.metrics, a.logger),
		Sinks:    sinks,
		Clock:    a.clock,
		Logger:   a.logger,
		Metrics:  a.metrics,
	}
	if a.cfg.IncidentsEnabled {
		deps.Incidents = inciweb.NewClient(inciweb.Options{
			URL:     a.cfg.IncidentURL,
			State:   a.cfg.IncidentState,
			MaxAge:  a.cfg.IncidentMaxAge,
			Timeout: a.cfg.IncidentTimeout,
		}, a.clock, a.metrics, a.logger)
	}
	return pipeline.New(pipeline.Options{
		GridBounds:   a.cfg.GridBounds,
		GridStep:     a.cfg.GridStep,
		Proximity:    features.ProximityConfig{CityMetric: a.cfg.CityMetric},
		ForecastLat:  a.cfg.ForecastLat,
		ForecastLon:  a.cfg.ForecastLon,
		Threshold:    a.cfg.Threshold,
		MaxMarkers:   a.cfg.MaxMarkers,
		Seed:         a.cfg.Seed,
		IngestBounds: a.cfg.IngestBounds,
	}, deps)
}

// newScorer builds the configured scorer. The classifier needs its trained
// model; there is no fallback when it cannot be loaded.
func (a *app) newScorer() (risk.Scorer, error) {
	switch a.cfg.Scorer {
	case config.ScorerClassifier:
		m, err := xgb.Load(a.cfg.ModelPath, a.cfg.ModelMetaPath)
		if err != nil {
			return nil, err
		}
		c, err := risk.NewClassifier(m)
		if err != nil {
			return nil, domain.Unavailable(domain.SourceModel, err)
		}
		a.logger.Info("classifier loaded", "model", a.cfg.ModelPath, "features", len(m.FeatureNames()))
		return c, nil
	case config.ScorerDemo:
		if !a.cfg.DemoMode {
			return nil, errors.New("demo scorer requires FORECAST_DEMO_MODE=true")
		}
		a.logger.Warn("demo scorer selected: scores are seeded random values, not risk estimates", "seed", a.cfg.Seed)
		return risk.NewDemo(a.cfg.Seed), nil
	case config.ScorerFormula, "":
		w, err := risk.WeightsByName(a.cfg.Weights)
		if err != nil {
			return nil, err
		}
		return risk.NewFormula(w)
	default:
		return nil, fmt.Errorf("unknown scorer %q", a.cfg.Scorer)
	}
}

// references returns the proximity reference points. A file lake takes
// precedence over LAKE_LAT and LAKE_LON.
func (a *app) references() (features.References, error) {
	refs := features.DefaultReferences()
	if a.cfg.ReferencesPath != "" {
		var err error
		refs, err = features.LoadReferences(a.cfg.ReferencesPath)
		if err != nil {
			return refs, err
		}
	}
	if refs.Lake == features.GreatSaltLake {
		refs.Lake = orb.Point{a.cfg.LakeLon, a.cfg.LakeLat}
	}
	return refs, nil
}

// readiness reports ready only when every checker does.
type readiness []interface {
	CheckReadiness(ctx context.Context) error
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
