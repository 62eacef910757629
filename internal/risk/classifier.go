package risk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

var (
	// ErrModelUnavailable is returned when no trained model is loaded. There
	// is no placeholder fallback.
	ErrModelUnavailable = errors.New("trained model unavailable")
	// ErrFeatureMismatch is returned when the model's declared features are
	// not exactly the features this pipeline produces.
	ErrFeatureMismatch = errors.New("model features do not match pipeline features")
)

// ClassifierFeatures are the columns the classifier was trained on.
var ClassifierFeatures = []string{
	domain.FeatureDistToRoadKm,
	domain.FeatureMonth,
	domain.FeatureVPDProxy,
	domain.FeatureDrynessProxy,
	domain.FeatureLowPrecipDryness,
	domain.FeatureGridLat,
	domain.FeatureGridLon,
}

// Model is a trained binary classifier.
type Model interface {
	// FeatureNames is the column order the model expects.
	FeatureNames() []string
	// PredictProbability returns P(ignition) for every row.
	PredictProbability(rows [][]float64) ([]float64, error)
}

// Classifier scores cells with a trained model's ignition probability.
type Classifier struct {
	model Model
	order []string
}

// NewClassifier checks the model's declared feature names against
// ClassifierFeatures. Names are compared, not counts, so a reordered model
// still gets its columns in the order it declares.
func NewClassifier(m Model) (*Classifier, error) {
	if m == nil {
		return nil, ErrModelUnavailable
	}
	names := m.FeatureNames()
	if err := matchFeatures(names, ClassifierFeatures); err != nil {
		return nil, err
	}
	return &Classifier{model: m, order: slices.Clone(names)}, nil
}

func matchFeatures(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: model declares %d features, pipeline has %d", ErrFeatureMismatch, len(got), len(want))
	}
	seen := make(map[string]bool, len(got))
	var unknown []string
	for _, name := range got {
		if seen[name] {
			return fmt.Errorf("%w: duplicate feature %q", ErrFeatureMismatch, name)
		}
		seen[name] = true
		if !slices.Contains(want, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown features %s", ErrFeatureMismatch, strings.Join(unknown, ", "))
	}
	return nil
}

func (c *Classifier) Name() string { return "classifier" }

// Score implements Scorer.
func (c *Classifier) Score(ctx context.Context, batch domain.ScoringBatch) ([]float64, error) {
	if err := checkBatch(ctx, batch); err != nil {
		return nil, err
	}
	if batch.Len() == 0 {
		return []float64{}, nil
	}

	rows := make([][]float64, batch.Len())
	backing := make([]float64, batch.Len()*len(c.order))
	for i := range rows {
		row := backing[i*len(c.order) : (i+1)*len(c.order)]
		for j, name := range c.order {
			row[j] = classifierValue(batch, i, name)
		}
		rows[i] = row
	}

	probs, err := c.model.PredictProbability(rows)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(probs) != len(rows) {
		return nil, fmt.Errorf("predict: model returned %d probabilities for %d rows", len(probs), len(rows))
	}
	for i, p := range probs {
		probs[i] = clip(p, 0, 1)
	}
	return probs, nil
}

// Explain implements Explainer with the model inputs of cell i.
func (c *Classifier) Explain(batch domain.ScoringBatch, i int) domain.FeatureVector {
	fv := make(domain.FeatureVector, len(c.order))
	for _, name := range c.order {
		fv[name] = classifierValue(batch, i, name)
	}
	return fv
}

func classifierValue(batch domain.ScoringBatch, i int, name string) float64 {
	cell := batch.Cells[i]
	switch name {
	case domain.FeatureDistToRoadKm:
		return cell.DistToRoadKm
	case domain.FeatureMonth:
		return float64(batch.Day.Month)
	case domain.FeatureVPDProxy:
		return batch.Day.VPDProxy
	case domain.FeatureDrynessProxy:
		return batch.Day.DrynessProxy
	case domain.FeatureLowPrecipDryness:
		return batch.Day.LowPrecipDryness
	case domain.FeatureGridLat:
		return cell.Cell.Lat
	case domain.FeatureGridLon:
		return cell.Cell.Lon
	}
	// Unreachable: names are validated in NewClassifier.
	return 0
}
