package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// formulaComponents is the number of equally weighted terms of the formula.
const formulaComponents = 6

// Weights parameterizes the formula. The presets are the two variants the
// scoring scripts shipped with; the divisors are heuristics, not fitted.
type Weights struct {
	// HumanDivisor scales the summed distances into the human factor.
	HumanDivisor float64 `json:"human_divisor"`
	// IncludeCityDistance adds the city distance to the road distance.
	IncludeCityDistance bool `json:"include_city_distance"`
	// DustScale multiplies dust exposure; the dust term lies in [0, DustScale].
	DustScale float64 `json:"dust_scale"`
}

var (
	// CanonicalWeights: human = 1 - (road + city) / 20, dust = exposure × 2.
	CanonicalWeights = Weights{HumanDivisor: 20, IncludeCityDistance: true, DustScale: 2}
	// RoadOnlyWeights: human = 1 - road / 10, dust = exposure × 2.
	RoadOnlyWeights = Weights{HumanDivisor: 10, IncludeCityDistance: false, DustScale: 2}
)

// WeightsByName resolves a preset name ("canonical" or "road_only").
func WeightsByName(name string) (Weights, error) {
	switch name {
	case "", "canonical":
		return CanonicalWeights, nil
	case "road_only":
		return RoadOnlyWeights, nil
	default:
		return Weights{}, fmt.Errorf("unknown weight preset %q", name)
	}
}

// Validate rejects weights that would divide by zero or flip a term's sign.
func (w Weights) Validate() error {
	if !(w.HumanDivisor > 0) || math.IsInf(w.HumanDivisor, 0) {
		return fmt.Errorf("human divisor must be positive, got %v", w.HumanDivisor)
	}
	if !(w.DustScale >= 0) || math.IsInf(w.DustScale, 0) {
		return fmt.Errorf("dust scale must be non-negative, got %v", w.DustScale)
	}
	return nil
}

// Formula is the deterministic weighted-sum scorer:
//
//	(dryness + precip + wind + dust + human + low_precip_dryness) / 6
//
// Every component is clipped to its range before summing and the final score
// is clipped to [0, 1]. With the default dust scale of 2 the unclipped sum can
// reach 7/6.
type Formula struct {
	weights Weights
}

// NewFormula returns a formula scorer using w.
func NewFormula(w Weights) (*Formula, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Formula{weights: w}, nil
}

func (f *Formula) Name() string { return "formula" }

// Weights returns the weights the scorer was built with.
func (f *Formula) Weights() Weights { return f.weights }

// Score implements Scorer.
func (f *Formula) Score(ctx context.Context, batch domain.ScoringBatch) ([]float64, error) {
	if err := checkBatch(ctx, batch); err != nil {
		return nil, err
	}
	dry := dryness(batch)
	scores := make([]float64, batch.Len())
	for i := range scores {
		scores[i] = f.score(f.components(batch, dry, i))
	}
	return scores, nil
}

// Explain implements Explainer with the six clipped components.
func (f *Formula) Explain(batch domain.ScoringBatch, i int) domain.FeatureVector {
	return f.components(batch, dryness(batch), i)
}

func (f *Formula) score(c domain.FeatureVector) float64 {
	sum := c[domain.FeatureDryness] +
		c[domain.FeaturePrecipFactor] +
		c[domain.FeatureWindFactor] +
		c[domain.FeatureDustFactor] +
		c[domain.FeatureHumanFactor] +
		c[domain.FeatureLowPrecipDryness]
	return clip(sum/formulaComponents, 0, 1)
}

func (f *Formula) components(batch domain.ScoringBatch, dry []float64, i int) domain.FeatureVector {
	cell := batch.Cells[i]
	day := batch.Day

	dist := cell.DistToRoadKm
	if f.weights.IncludeCityDistance {
		dist += cell.DistToCityKm
	}
	low := 0.5
	if day.LowPrecipDryness >= 1 {
		low = 1.0
	}

	return domain.FeatureVector{
		domain.FeatureDryness:          clip(dry[i], 0, 1),
		domain.FeaturePrecipFactor:     clip(day.PrecipFactor, 0, 1),
		domain.FeatureWindFactor:       clip(day.WindFactor, 0, 1),
		domain.FeatureDustFactor:       clip(cell.DustExposure*f.weights.DustScale, 0, f.weights.DustScale),
		domain.FeatureHumanFactor:      clip(1-dist/f.weights.HumanDivisor, 0, 1),
		domain.FeatureLowPrecipDryness: low,
	}
}

// clip bounds v to [lo, hi]. NaN maps to lo.
func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
