// Package risk turns per-cell covariates into a ranking score. Two scorers
// are interchangeable behind Scorer: a deterministic weighted formula and a
// trained classifier's ignition probability.
package risk

import (
	"context"
	"fmt"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/features"
)

// Scorer produces one score per cell of a batch, in batch order. Scores are
// relative rankings, not calibrated probabilities, unless the scorer says so.
type Scorer interface {
	Name() string
	Score(ctx context.Context, batch domain.ScoringBatch) ([]float64, error)
}

// Explainer is implemented by scorers that can report the features behind the
// score of cell i.
type Explainer interface {
	Explain(batch domain.ScoringBatch, i int) domain.FeatureVector
}

// Snapshot returns the raw covariates of cell i plus, when s is an
// Explainer, the scorer's own components.
func Snapshot(s Scorer, batch domain.ScoringBatch, i int) domain.FeatureVector {
	c := batch.Cells[i]
	fv := domain.FeatureVector{
		domain.FeatureDistToRoadKm:     c.DistToRoadKm,
		domain.FeatureDistToCityKm:     c.DistToCityKm,
		domain.FeatureDustExposure:     c.DustExposure,
		domain.FeatureVPDProxy:         batch.Day.VPDProxy,
		domain.FeatureMonth:            float64(batch.Day.Month),
		domain.FeatureLowPrecipDryness: batch.Day.LowPrecipDryness,
	}
	if e, ok := s.(Explainer); ok {
		for k, v := range e.Explain(batch, i) {
			fv[k] = v
		}
	}
	return fv
}

// dryness returns the batch-normalized dryness of every cell. Batches built
// without it broadcast the day's VPD proxy and normalize that.
func dryness(batch domain.ScoringBatch) []float64 {
	if len(batch.Dryness) == batch.Len() {
		return batch.Dryness
	}
	vpd := make([]float64, batch.Len())
	for i := range vpd {
		vpd[i] = batch.Day.VPDProxy
	}
	return features.NormalizeDryness(vpd)
}

func checkBatch(ctx context.Context, batch domain.ScoringBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch.Dryness != nil && len(batch.Dryness) != batch.Len() {
		return fmt.Errorf("dryness has %d values for %d cells", len(batch.Dryness), batch.Len())
	}
	return nil
}
