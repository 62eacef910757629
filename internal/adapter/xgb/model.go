// Package xgb loads a trained XGBoost ignition classifier for the risk
// scorer.
package xgb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/risk"
	"github.com/dmitryikh/leaves"
)

// Metadata is the JSON sidecar saved next to the model: the feature columns
// in training order.
type Metadata struct {
	Features []string `json:"features"`
}

type ensemble interface {
	PredictSingle(fvals []float64, nEstimators int) float64
	NFeatures() int
}

// Model implements risk.Model over an XGBoost ensemble.
type Model struct {
	ens      ensemble
	features []string
}

// Load reads the binary XGBoost model at modelPath and its feature metadata
// at metaPath. Every failure is a model SourceError wrapping
// risk.ErrModelUnavailable.
func Load(modelPath, metaPath string) (*Model, error) {
	meta, err := LoadMetadata(metaPath)
	if err != nil {
		return nil, unavailable(err)
	}
	ens, err := leaves.XGEnsembleFromFile(modelPath, true)
	if err != nil {
		return nil, unavailable(fmt.Errorf("load model %s: %w", modelPath, err))
	}
	m, err := newModel(ens, meta.Features)
	if err != nil {
		return nil, unavailable(err)
	}
	return m, nil
}

func newModel(ens ensemble, features []string) (*Model, error) {
	if ens.NFeatures() != len(features) {
		return nil, fmt.Errorf("%w: model has %d features, metadata lists %d",
			risk.ErrFeatureMismatch, ens.NFeatures(), len(features))
	}
	return &Model{ens: ens, features: features}, nil
}

func unavailable(err error) error {
	return domain.Unavailable(domain.SourceModel, fmt.Errorf("%w: %w", risk.ErrModelUnavailable, err))
}

// LoadMetadata reads the feature sidecar.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read model metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode model metadata %s: %w", path, err)
	}
	if len(meta.Features) == 0 {
		return Metadata{}, errors.New("model metadata lists no features")
	}
	return meta, nil
}

// FeatureNames implements risk.Model.
func (m *Model) FeatureNames() []string {
	return m.features
}

// PredictProbability implements risk.Model. Every row must have one value per
// feature.
func (m *Model) PredictProbability(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		if len(r) != len(m.features) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", risk.ErrFeatureMismatch, i, len(r), len(m.features))
		}
		out[i] = m.ens.PredictSingle(r, 0)
	}
	return out, nil
}
