package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/couchcryptid/wildfire-risk-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

// forecastRunTimeout bounds one scheduled forecast run.
const forecastRunTimeout = 10 * time.Minute

func (a *app) serveCmd() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily forecast on a schedule and serve the latest payload over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger

			scorer, err := a.newScorer()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store, logger)

			sinks, closeSinks := a.sinks()
			defer closeSinks()
			p := a.newPipeline(store, sinks...)

			switch pl, err := output.ReadFile(a.cfg.PayloadPath); {
			case err == nil:
				p.Restore(pl)
				logger.Info("previous payload restored", "path", a.cfg.PayloadPath, "generated_at", pl.GeneratedAt)
			case errors.Is(err, os.ErrNotExist):
				logger.Info("no previous payload", "path", a.cfg.PayloadPath)
			default:
				logger.Warn("previous payload unreadable", "path", a.cfg.PayloadPath, "error", err)
			}

			run := func(ctx context.Context) error {
				_, err := p.Forecast(ctx, scorer)
				return err
			}
			sched, err := pipeline.NewScheduler(a.cfg.ForecastSchedule, forecastRunTimeout, run, a.clock, logger)
			if err != nil {
				return err
			}

			srv := httpadapter.NewServer(a.cfg.HTTPAddr, readiness{store, p}, p, logger)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()

			sched.Start()
			if runNow {
				go func() {
					if err := run(ctx); err != nil {
						logger.Error("startup forecast failed", "error", err)
					}
				}()
			}

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			sched.Stop(shutdownCtx)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one forecast immediately instead of waiting for the schedule")
	return cmd
}
