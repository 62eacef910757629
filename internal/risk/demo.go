package risk

import (
	"context"
	"math/rand/v2"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// Demo produces seeded pseudo-random probabilities for exercising the rest of
// the pipeline without a trained model. Its payloads are labelled "demo" so
// they are never mistaken for a forecast.
type Demo struct {
	seed uint64
}

// NewDemo returns a demo scorer. Every Score call with the same seed and
// batch size returns the same values.
func NewDemo(seed uint64) *Demo {
	return &Demo{seed: seed}
}

func (d *Demo) Name() string { return "demo" }

// Score implements Scorer.
func (d *Demo) Score(ctx context.Context, batch domain.ScoringBatch) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(d.seed, d.seed))
	scores := make([]float64, batch.Len())
	for i := range scores {
		scores[i] = rng.Float64()
	}
	return scores, nil
}
