package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(d int) time.Time {
	return time.Date(2024, time.July, d, 0, 0, 0, 0, time.UTC)
}

func testDetections() []domain.FireDetection {
	return []domain.FireDetection{
		{Lat: 40.26, Lon: -111.71, AcqDate: day(2), Brightness: 330.5, FRP: 12.1, Confidence: "n", Source: "a.csv"},
		{Lat: 40.31, Lon: -111.69, AcqDate: day(2), Brightness: 310, FRP: 4, Confidence: "h", Source: "a.csv"},
		{Lat: 38.0, Lon: -113.0, AcqDate: day(1), Brightness: 305, FRP: 2.5, Confidence: "n", Source: "b.csv"},
		{Lat: 45.0, Lon: -120.0, AcqDate: day(3), Brightness: 301, FRP: 1, Confidence: "n", Source: "b.csv"},
	}
}

func TestStore_DetectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.ReplaceDetections(ctx, testDetections()))

	got, err := s.Detections(ctx, domain.UtahBounds)
	require.NoError(t, err)
	require.Len(t, got, 3, "detection outside the box is filtered")
	assert.Equal(t, day(1), got[0].AcqDate, "ordered by date")
	assert.Equal(t, testDetections()[0], got[1])

	counts, err := s.DetectionCountsByDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DateCount{{day(1), 1}, {day(2), 2}, {day(3), 1}}, counts)
}

func TestStore_ReplaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.ReplaceDetections(ctx, testDetections()))
	require.NoError(t, s.ReplaceDetections(ctx, testDetections()[:1]))

	got, err := s.Detections(ctx, domain.WesternUSBounds)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_MissingTable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.ProximityGrid(ctx)
	require.ErrorIs(t, err, ErrTableMissing)
	_, _, err = s.LabelSummary(ctx)
	require.ErrorIs(t, err, ErrTableMissing)
	_, err = s.Detections(ctx, domain.UtahBounds)
	require.ErrorIs(t, err, ErrTableMissing)

	require.NoError(t, s.CheckReadiness(ctx))
}

func TestStore_Labels(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cells, err := grid.Generate(domain.BoundingBox{LatMin: 40.2, LatMax: 40.4, LonMin: -111.8, LonMax: -111.6}, 0.1)
	require.NoError(t, err)
	table, _, err := grid.Labels(testDetections()[:2], cells, []time.Time{day(1), day(2)}, 0.1)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceLabels(ctx, table))

	rows, positives, err := s.LabelSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 18, rows)
	assert.Equal(t, table.Positives(), positives)
}

func TestStore_ProximityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	in := []domain.CellProximity{
		{Cell: domain.SnapCell(40.1, -111.9, 0.1), DistToRoadKm: 1, DistToCityKm: 2, DistToLakeKm: 3, DustExposure: 0.25},
		{Cell: domain.SnapCell(40.0, -111.9, 0.1), DistToRoadKm: 4, DistToCityKm: 5, DistToLakeKm: 6, DustExposure: 0.14},
	}
	require.NoError(t, s.ReplaceProximity(ctx, in))

	got, err := s.ProximityGrid(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, in[1], got[0], "latitude-major order")
	assert.Equal(t, in[0], got[1])
}

func TestStore_DetectionWeatherKeepsNulls(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	det := testDetections()[0]
	in := []domain.DetectionWeather{{
		Detection: domain.FireDetection{Lat: det.Lat, Lon: det.Lon, AcqDate: det.AcqDate},
		Station:   "USW00024127",
		Weather: domain.DailyWeather{
			Date:      det.AcqDate,
			Lat:       det.Lat,
			Lon:       det.Lon,
			TempMeanC: domain.Float(31.2),
			PrecipMm:  domain.Float(0),
		},
	}}
	require.NoError(t, s.ReplaceDetectionWeather(ctx, in))

	got, err := s.DetectionWeather(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "USW00024127", got[0].Station)
	assert.Equal(t, 31.2, *got[0].Weather.TempMeanC)
	assert.Nil(t, got[0].Weather.RHMeanPct)
	assert.Nil(t, got[0].Weather.WindMaxKmh)
	assert.Equal(t, 0.0, *got[0].Weather.PrecipMm)
}
