package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/features"
	"github.com/couchcryptid/wildfire-risk-etl/internal/grid"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	"github.com/couchcryptid/wildfire-risk-etl/internal/pipeline"
	"github.com/couchcryptid/wildfire-risk-etl/internal/risk"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct {
	mu        sync.Mutex
	dets      []domain.FireDetection
	labels    *grid.LabelTable
	proximity []domain.CellProximity
	weather   []domain.DetectionWeather
	err       error
}

func (m *mockStore) ReplaceDetections(_ context.Context, dets []domain.FireDetection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.dets = dets
	return nil
}

func (m *mockStore) Detections(_ context.Context, box domain.BoundingBox) ([]domain.FireDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	kept, _ := domain.ClipDetections(m.dets, box)
	return kept, nil
}

func (m *mockStore) ReplaceLabels(_ context.Context, t *grid.LabelTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels = t
	return nil
}

func (m *mockStore) ReplaceProximity(_ context.Context, cells []domain.CellProximity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proximity = cells
	return nil
}

func (m *mockStore) ProximityGrid(_ context.Context) ([]domain.CellProximity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proximity == nil {
		return nil, errors.New("table not found: grid_proximity")
	}
	return m.proximity, nil
}

func (m *mockStore) ReplaceDetectionWeather(_ context.Context, rows []domain.DetectionWeather) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weather = rows
	return nil
}

type mockForecast struct {
	w       domain.DailyWeather
	err     error
	entered chan struct{}
	release chan struct{}
}

func (m *mockForecast) DailyForecast(ctx context.Context, lat, lon float64) (domain.DailyWeather, error) {
	if m.entered != nil {
		close(m.entered)
		select {
		case <-m.release:
		case <-ctx.Done():
			return domain.DailyWeather{}, ctx.Err()
		}
	}
	if m.err != nil {
		return domain.DailyWeather{}, m.err
	}
	w := m.w
	w.Lat, w.Lon = lat, lon
	return w, nil
}

type mockIncidents struct {
	incidents []domain.Incident
	err       error
}

func (m *mockIncidents) ActiveIncidents(context.Context) ([]domain.Incident, error) {
	return m.incidents, m.err
}

type mockSink struct {
	name      string
	err       error
	published []output.Payload
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Publish(_ context.Context, p output.Payload) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, p)
	return nil
}

type mockObservations struct {
	fail map[float64]bool // by latitude
}

func (m *mockObservations) Observation(_ context.Context, lat, lon float64, date time.Time) (domain.DailyWeather, error) {
	if m.fail[lat] {
		return domain.DailyWeather{}, errors.New("station offline")
	}
	return domain.DailyWeather{
		Date: date, Lat: lat, Lon: lon,
		TempMeanC: domain.Float(30), RHMeanPct: domain.Float(15), WindMaxKmh: domain.Float(20), PrecipMm: domain.Float(0),
	}, nil
}

// --- helpers ---

var (
	testBounds = domain.BoundingBox{LatMin: 40.0, LatMax: 40.2, LonMin: -112.0, LonMax: -111.8}
	today      = time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC)
)

func dryDay() domain.DailyWeather {
	return domain.DailyWeather{
		Date:       today,
		TempMeanC:  domain.Float(32),
		RHMeanPct:  domain.Float(12),
		WindMaxKmh: domain.Float(25),
		PrecipMm:   domain.Float(0),
	}
}

func newTestPipeline(store *mockStore, deps pipeline.Deps) *pipeline.Pipeline {
	deps.Store = store
	if deps.Forecast == nil {
		deps.Forecast = &mockForecast{w: dryDay()}
	}
	deps.Clock = clockwork.NewFakeClockAt(today.Add(6 * time.Hour))
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.Metrics = observability.NewMetricsForTesting()
	return pipeline.New(pipeline.Options{
		GridBounds:   testBounds,
		GridStep:     0.1,
		Proximity:    features.DefaultProximityConfig,
		ForecastLat:  40.5,
		ForecastLon:  -111.9,
		Threshold:    0.5,
		MaxMarkers:   500,
		Seed:         output.DefaultSeed,
		IngestBounds: domain.WesternUSBounds,
	}, deps)
}

func formula(t *testing.T) risk.Scorer {
	t.Helper()
	f, err := risk.NewFormula(risk.CanonicalWeights)
	require.NoError(t, err)
	return f
}

// --- ingest, labels, proximity ---

func TestPipeline_Ingest_ClipsToIngestBounds(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(store, pipeline.Deps{})

	dets := []domain.FireDetection{
		{Lat: 40.1, Lon: -111.9, AcqDate: today},
		{Lat: 60.0, Lon: -150.0, AcqDate: today}, // Alaska
	}
	err := p.Ingest(context.Background(), dets, domain.IngestStats{Read: 3, Accepted: 2, Malformed: 1})
	require.NoError(t, err)
	assert.Len(t, store.dets, 1)
}

func TestPipeline_Ingest_StoreFailureIsSourceError(t *testing.T) {
	store := &mockStore{err: errors.New("disk full")}
	p := newTestPipeline(store, pipeline.Deps{})

	err := p.Ingest(context.Background(), nil, domain.IngestStats{})
	var se *domain.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.SourceStore, se.Source)
}

func TestPipeline_Labels(t *testing.T) {
	store := &mockStore{dets: []domain.FireDetection{
		{Lat: 40.04, Lon: -111.96, AcqDate: today},
		{Lat: 40.03, Lon: -111.97, AcqDate: today}, // same cell as above
		{Lat: 40.19, Lon: -111.81, AcqDate: today.AddDate(0, 0, 2)},
		{Lat: 38.0, Lon: -113.0, AcqDate: today.AddDate(0, 0, 9)}, // outside the grid
	}}
	p := newTestPipeline(store, pipeline.Deps{})

	stats, err := p.Labels(context.Background())
	require.NoError(t, err)

	// 3×3 cells over three days.
	assert.Equal(t, 27, stats.Rows)
	assert.Equal(t, 2, stats.Positives)
	require.NotNil(t, store.labels)
	assert.Equal(t, 27, store.labels.Len())
	assert.Len(t, store.labels.Dates, 3)
}

func TestPipeline_Labels_NoDetections(t *testing.T) {
	p := newTestPipeline(&mockStore{}, pipeline.Deps{})
	_, err := p.Labels(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoDetections)
}

func TestPipeline_Proximity(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(store, pipeline.Deps{})

	cells, err := p.Proximity(context.Background(), features.DefaultReferences())
	require.NoError(t, err)
	assert.Len(t, cells, 9)
	assert.Equal(t, cells, store.proximity)
	for _, c := range cells {
		assert.Greater(t, c.DistToRoadKm, 0.0)
		assert.LessOrEqual(t, c.DustExposure, 1.0)
	}
}

// --- weather ---

func TestPipeline_Weather_ObservationJoin(t *testing.T) {
	store := &mockStore{dets: []domain.FireDetection{
		{Lat: 40.1, Lon: -111.9, AcqDate: today},
		{Lat: 40.15, Lon: -111.85, AcqDate: today},
	}}
	p := newTestPipeline(store, pipeline.Deps{})

	src := &mockObservations{fail: map[float64]bool{40.15: true}}
	stats, err := p.Weather(context.Background(), pipeline.ObservationJoin(src))
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStats{Succeeded: 1, Failed: 1}, stats)

	require.Len(t, store.weather, 2)
	assert.True(t, store.weather[0].Weather.Complete())
	assert.False(t, store.weather[1].Weather.Complete())
	assert.Equal(t, today, store.weather[1].Weather.Date)
}

func TestPipeline_Weather_InvalidReadingsAreCleared(t *testing.T) {
	store := &mockStore{dets: []domain.FireDetection{{Lat: 40.1, Lon: -111.9, AcqDate: today}}}
	p := newTestPipeline(store, pipeline.Deps{})

	join := func(_ context.Context, dets []domain.FireDetection) ([]domain.DetectionWeather, domain.FetchStats, error) {
		return []domain.DetectionWeather{{
			Detection: dets[0],
			Weather:   domain.DailyWeather{Date: today, PrecipMm: domain.Float(-3)},
		}}, domain.FetchStats{Succeeded: 1}, nil
	}
	_, err := p.Weather(context.Background(), join)
	require.NoError(t, err)
	require.Len(t, store.weather, 1)
	assert.Nil(t, store.weather[0].Weather.PrecipMm)
}

// --- forecast ---

func proximityStore(t *testing.T) *mockStore {
	t.Helper()
	store := &mockStore{}
	p := newTestPipeline(store, pipeline.Deps{})
	_, err := p.Proximity(context.Background(), features.DefaultReferences())
	require.NoError(t, err)
	return store
}

func TestPipeline_Forecast_HappyPath(t *testing.T) {
	store := proximityStore(t)
	file := &mockSink{name: "file"}
	incidents := &mockIncidents{incidents: []domain.Incident{{Lat: 40.1, Lon: -111.9, Name: "Dry Creek", Status: "Active"}}}
	p := newTestPipeline(store, pipeline.Deps{Incidents: incidents, Sinks: []pipeline.PayloadSink{file}})

	require.Error(t, p.CheckReadiness(context.Background()))

	pl, err := p.Forecast(context.Background(), formula(t))
	require.NoError(t, err)

	assert.Equal(t, "formula", pl.Scorer)
	assert.Equal(t, today, pl.ForecastDate)
	assert.Equal(t, 9, pl.TotalCells)
	assert.Len(t, pl.Heat, 9)
	assert.Len(t, pl.Incidents, 1)
	assert.Equal(t, today.Add(6*time.Hour), pl.GeneratedAt)
	for _, h := range pl.Heat {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
	for _, m := range pl.Markers {
		assert.Greater(t, m.Score, 0.5)
		assert.Contains(t, m.Features, domain.FeatureDistToRoadKm)
	}

	require.Len(t, file.published, 1)
	assert.Equal(t, pl, file.published[0])
	require.NoError(t, p.CheckReadiness(context.Background()))
	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, pl, latest)
}

func TestPipeline_Forecast_IncidentFailureDegrades(t *testing.T) {
	store := proximityStore(t)
	p := newTestPipeline(store, pipeline.Deps{Incidents: &mockIncidents{err: errors.New("timeout")}})

	pl, err := p.Forecast(context.Background(), formula(t))
	require.NoError(t, err)
	assert.Nil(t, pl.Incidents)
}

func TestPipeline_Forecast_SourceErrors(t *testing.T) {
	partial := dryDay()
	partial.RHMeanPct = nil

	cases := []struct {
		name     string
		store    func(t *testing.T) *mockStore
		forecast *mockForecast
		scorer   func(t *testing.T) risk.Scorer
		source   string
	}{
		{
			name:     "missing proximity table",
			store:    func(*testing.T) *mockStore { return &mockStore{} },
			forecast: &mockForecast{w: dryDay()},
			scorer:   formula,
			source:   domain.SourceStore,
		},
		{
			name:     "forecast unavailable",
			store:    proximityStore,
			forecast: &mockForecast{err: errors.New("connection refused")},
			scorer:   formula,
			source:   domain.SourceForecast,
		},
		{
			name:     "forecast missing humidity",
			store:    proximityStore,
			forecast: &mockForecast{w: partial},
			scorer:   formula,
			source:   domain.SourceForecast,
		},
		{
			name:     "model features mismatch",
			store:    proximityStore,
			forecast: &mockForecast{w: dryDay()},
			scorer:   func(*testing.T) risk.Scorer { return failingScorer{err: risk.ErrFeatureMismatch} },
			source:   domain.SourceModel,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &mockSink{name: "file"}
			p := newTestPipeline(tc.store(t), pipeline.Deps{Forecast: tc.forecast, Sinks: []pipeline.PayloadSink{sink}})

			_, err := p.Forecast(context.Background(), tc.scorer(t))
			var se *domain.SourceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.source, se.Source)
			assert.Empty(t, sink.published, "no payload on a failed run")
			assert.Error(t, p.CheckReadiness(context.Background()))
		})
	}
}

type failingScorer struct{ err error }

func (f failingScorer) Name() string { return "failing" }

func (f failingScorer) Score(context.Context, domain.ScoringBatch) ([]float64, error) {
	return nil, f.err
}

func TestPipeline_Forecast_SinkFailureStillTriesOthers(t *testing.T) {
	store := proximityStore(t)
	broken := &mockSink{name: "kafka", err: errors.New("broker down")}
	file := &mockSink{name: "file"}
	p := newTestPipeline(store, pipeline.Deps{Sinks: []pipeline.PayloadSink{broken, file}})

	_, err := p.Forecast(context.Background(), formula(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink kafka")
	assert.Len(t, file.published, 1)
}

func TestPipeline_Forecast_OneRunAtATime(t *testing.T) {
	store := proximityStore(t)
	fc := &mockForecast{w: dryDay(), entered: make(chan struct{}), release: make(chan struct{})}
	p := newTestPipeline(store, pipeline.Deps{Forecast: fc})

	scorer := formula(t)
	done := make(chan error, 1)
	go func() {
		_, err := p.Forecast(context.Background(), scorer)
		done <- err
	}()
	<-fc.entered

	_, err := p.Forecast(context.Background(), scorer)
	require.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(fc.release)
	require.NoError(t, <-done)
}

func TestPipeline_Restore(t *testing.T) {
	p := newTestPipeline(&mockStore{}, pipeline.Deps{})
	p.Restore(output.Payload{Scorer: "formula"})

	require.NoError(t, p.CheckReadiness(context.Background()))
	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, "formula", latest.Scorer)
}
