// Package output selects what a rendered risk map shows and packages it as
// the run's payload.
package output

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// DefaultSeed keeps marker sampling reproducible across runs.
const DefaultSeed = 42

// HeatPoint is one weighted point of the heat layer.
type HeatPoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Score float64 `json:"score"`
}

// Marker is one high-risk cell shown individually with its feature snapshot.
type Marker struct {
	Lat      float64              `json:"lat"`
	Lon      float64              `json:"lon"`
	Score    float64              `json:"score"`
	Features domain.FeatureVector `json:"features,omitempty"`
}

// SelectForDisplay returns every cell as a heat point and the cells scoring
// strictly above threshold as markers. When more than maxMarkers cells
// qualify, maxMarkers of them are sampled without replacement with a PCG
// source seeded by seed; the chosen markers keep their input order. A
// non-positive maxMarkers disables the cap.
func SelectForDisplay(cells []domain.ScoredCell, threshold float64, maxMarkers int, seed uint64) ([]HeatPoint, []Marker) {
	heat := make([]HeatPoint, len(cells))
	var high []int
	for i, c := range cells {
		heat[i] = HeatPoint{Lat: c.Cell.Lat, Lon: c.Cell.Lon, Score: c.Score}
		if c.Score > threshold {
			high = append(high, i)
		}
	}

	if maxMarkers > 0 && len(high) > maxMarkers {
		high = sample(high, maxMarkers, seed)
	}

	markers := make([]Marker, len(high))
	for j, i := range high {
		c := cells[i]
		markers[j] = Marker{Lat: c.Cell.Lat, Lon: c.Cell.Lon, Score: c.Score, Features: c.Features}
	}
	return heat, markers
}

// sample picks k of idx without replacement and returns them in their
// original order.
func sample(idx []int, k int, seed uint64) []int {
	rng := rand.New(rand.NewPCG(seed, seed))
	pool := slices.Clone(idx)
	// Partial Fisher-Yates: the first k slots end up a uniform sample.
	for i := range k {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	chosen := pool[:k]
	slices.Sort(chosen)
	return chosen
}

// TopN returns the n highest-scoring cells, highest first. Ties keep input
// order.
func TopN(cells []domain.ScoredCell, n int) []domain.ScoredCell {
	sorted := slices.Clone(cells)
	slices.SortStableFunc(sorted, func(a, b domain.ScoredCell) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if n < len(sorted) {
		sorted = sorted[:max(n, 0)]
	}
	return sorted
}

// CountAbove returns how many cells score strictly above threshold.
func CountAbove(cells []domain.ScoredCell, threshold float64) int {
	n := 0
	for _, c := range cells {
		if c.Score > threshold {
			n++
		}
	}
	return n
}
