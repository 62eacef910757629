package main

import (
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/adapter/firms"
	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/spf13/cobra"
)

func (a *app) ingestCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load FIRMS detection CSVs into the detection table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.FIRMSDir
			}
			dets, stats, err := firms.ReadDir(dir, firms.Options{
				Bounds:            a.cfg.IngestBounds,
				ExcludeConfidence: domain.LowConfidence,
			}, a.logger)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			if err := a.newPipeline(store).Ingest(cmd.Context(), dets, stats); err != nil {
				return err
			}
			counts, err := store.DetectionCountsByDate(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range counts {
				a.logger.Debug("detections per day", "date", c.Date.Format(time.DateOnly), "count", c.Count)
			}
			a.logger.Info("ingest complete", "days", len(counts), "sources", len(stats.PerSourceCount))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of FIRMS CSV exports (default FIRMS_DIR)")
	return cmd
}

func (a *app) labelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Rebuild the grid x date ignition label table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			_, err = a.newPipeline(store).Labels(cmd.Context())
			return err
		},
	}
}

func (a *app) proximityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proximity",
		Short: "Rebuild the per-cell road, city and dust proximity table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			refs, err := a.references()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			_, err = a.newPipeline(store).Proximity(cmd.Context(), refs)
			return err
		},
	}
}
