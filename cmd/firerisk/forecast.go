package main

import (
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/couchcryptid/wildfire-risk-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func (a *app) forecastCmd() *cobra.Command {
	var scorer string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Score every grid cell for today's forecast and write the risk payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scorer != "" {
				a.cfg.Scorer = scorer
			}
			s, err := a.newScorer()
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			sinks, closeSinks := a.sinks()
			defer closeSinks()

			pl, err := a.newPipeline(store, sinks...).Forecast(cmd.Context(), s)
			if err != nil {
				return err
			}
			a.logger.Info("payload written", "path", a.cfg.PayloadPath, "date", pl.ForecastDate.Format(time.DateOnly), "high_risk", pl.HighRisk)
			return nil
		},
	}
	cmd.Flags().StringVar(&scorer, "scorer", "", "override SCORER: formula, classifier or demo")
	return cmd
}

// sinks returns the payload file sink plus the Kafka sink when enabled, and a
// func that closes what needs closing.
func (a *app) sinks() ([]pipeline.PayloadSink, func()) {
	sinks := []pipeline.PayloadSink{output.FileSink{Path: a.cfg.PayloadPath}}
	if !a.cfg.KafkaEnabled {
		return sinks, func() {}
	}
	w := kafka.NewWriter(a.cfg, a.logger)
	return append(sinks, w), func() {
		if err := w.Close(); err != nil {
			a.logger.Error("kafka writer close error", "error", err)
		}
	}
}
