package output

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(scores ...float64) []domain.ScoredCell {
	cells := make([]domain.ScoredCell, len(scores))
	for i, s := range scores {
		cells[i] = domain.ScoredCell{
			Cell:     domain.SnapCell(37+float64(i)*0.1, -114, 0.1),
			Score:    s,
			Features: domain.FeatureVector{domain.FeatureDistToRoadKm: float64(i)},
		}
	}
	return cells
}

func TestSelectForDisplay_HeatIsUnfiltered(t *testing.T) {
	cells := scored(0.1, 0.6, 0.5, 0.9)
	heat, markers := SelectForDisplay(cells, 0.5, 500, DefaultSeed)

	require.Len(t, heat, 4)
	assert.Equal(t, HeatPoint{Lat: 37.1, Lon: -114, Score: 0.6}, heat[1])

	// Strictly above the threshold: 0.5 is not a marker.
	require.Len(t, markers, 2)
	assert.Equal(t, 0.6, markers[0].Score)
	assert.Equal(t, 0.9, markers[1].Score)
	assert.Equal(t, 3.0, markers[1].Features[domain.FeatureDistToRoadKm])
}

func TestSelectForDisplay_UnderCapReturnsAll(t *testing.T) {
	cells := scored(0.7, 0.8, 0.9)
	_, markers := SelectForDisplay(cells, 0.5, 3, DefaultSeed)
	require.Len(t, markers, 3)
	for i, m := range markers {
		assert.Equal(t, cells[i].Score, m.Score)
	}
}

func TestSelectForDisplay_SamplesDeterministically(t *testing.T) {
	scores := make([]float64, 2000)
	for i := range scores {
		scores[i] = 0.5 + float64(i%100)/1000 + 0.0001
	}
	cells := scored(scores...)

	_, a := SelectForDisplay(cells, 0.5, 500, DefaultSeed)
	_, b := SelectForDisplay(cells, 0.5, 500, DefaultSeed)
	_, c := SelectForDisplay(cells, 0.5, 500, 7)

	require.Len(t, a, 500)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// Sampled without replacement and in input order.
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1].Lat, a[i].Lat)
	}
}

func TestSelectForDisplay_NoCap(t *testing.T) {
	_, markers := SelectForDisplay(scored(0.9, 0.9, 0.9), 0.5, 0, DefaultSeed)
	assert.Len(t, markers, 3)
}

func TestTopN(t *testing.T) {
	cells := scored(0.2, 0.9, 0.5, 0.9, 0.1)
	top := TopN(cells, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []float64{0.9, 0.9, 0.5}, []float64{top[0].Score, top[1].Score, top[2].Score})
	assert.Equal(t, cells[1].Cell, top[0].Cell, "ties keep input order")

	assert.Len(t, TopN(cells, 10), 5)
	assert.Empty(t, TopN(cells, -1))
	assert.Equal(t, 0.2, cells[0].Score, "input is not reordered")
}

func TestBuildPayload_AndWriteFile(t *testing.T) {
	now := time.Date(2025, time.October, 3, 6, 0, 0, 0, time.UTC)
	day := domain.DailyFeatures{Date: time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC), Month: 10}
	incidents := []domain.Incident{{Lat: 40.1, Lon: -111.5, Name: "Test Fire", Status: "Active"}}

	p := BuildPayload(scored(0.2, 0.7), domain.DailyWeather{TempMeanC: domain.Float(5.4)}, day, incidents, PayloadOptions{
		Scorer:     "formula",
		Threshold:  0.5,
		MaxMarkers: 500,
		Seed:       DefaultSeed,
		Now:        now,
	})
	assert.Equal(t, "formula", p.Scorer)
	assert.Equal(t, 2, p.TotalCells)
	assert.Equal(t, 1, p.HighRisk)
	assert.Len(t, p.Heat, 2)
	assert.Len(t, p.Markers, 1)
	assert.Equal(t, day.Date, p.ForecastDate)

	path := filepath.Join(t.TempDir(), "out", "payload.json")
	require.NoError(t, WriteFile(path, p))
	require.NoError(t, WriteFile(path, p), "existing payload is overwritten")

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.Scorer, got.Scorer)
	assert.Equal(t, p.Markers, got.Markers)
	assert.Equal(t, p.Incidents, got.Incidents)
	assert.True(t, p.GeneratedAt.Equal(got.GeneratedAt))
}

func TestBuildPayload_WithoutIncidents(t *testing.T) {
	p := BuildPayload(scored(0.2), domain.DailyWeather{}, domain.DailyFeatures{}, nil, PayloadOptions{Threshold: 0.5})
	assert.Nil(t, p.Incidents)
	assert.Empty(t, p.Markers)
}

func TestFileSink_Publish(t *testing.T) {
	sink := FileSink{Path: filepath.Join(t.TempDir(), "risk_payload.json")}
	assert.Equal(t, "file", sink.Name())

	p := BuildPayload(scored(0.9), domain.DailyWeather{}, domain.DailyFeatures{}, nil, PayloadOptions{Scorer: "demo", Threshold: 0.5})
	require.NoError(t, sink.Publish(context.Background(), p))

	got, err := ReadFile(sink.Path)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Scorer)
	assert.Equal(t, 1, got.HighRisk)
}
