// Package features derives per-cell risk covariates: nearest-neighbour
// distances to reference point sets, dust exposure from the lake bed, and the
// daily weather dryness proxies.
package features

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/geodesy"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNoReferences is returned when a nearest-neighbour query has nothing to
// measure against.
var ErrNoReferences = errors.New("reference point set is empty")

// blockRows bounds the rows of one distance-matrix block so that a block of
// N×M float64s stays small regardless of the grid size.
const blockRows = 4096

// DistanceMatrix returns the len(points)×len(refs) matrix of metric distances.
func DistanceMatrix(points, refs []orb.Point, metric geodesy.Metric) *mat.Dense {
	if len(points) == 0 || len(refs) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(len(points), len(refs), nil)
	fillDistances(m, points, refs, metric)
	return m
}

func fillDistances(m *mat.Dense, points, refs []orb.Point, metric geodesy.Metric) {
	for i, p := range points {
		row := m.RawRowView(i)
		for j, r := range refs {
			row[j] = metric(p.Lat(), p.Lon(), r.Lat(), r.Lon())
		}
	}
}

// NearestDistanceKm returns, for every point, the planar distance in km to the
// closest reference point. The planar metric matches the calibration of the
// risk formula.
func NearestDistanceKm(points, refs []orb.Point) ([]float64, error) {
	return NearestDistance(points, refs, geodesy.Planar)
}

// NearestDistance is NearestDistanceKm with an explicit metric.
func NearestDistance(points, refs []orb.Point, metric geodesy.Metric) ([]float64, error) {
	out := make([]float64, len(points))
	err := reduceRows(points, refs, metric, func(i int, row []float64) {
		out[i] = floats.Min(row)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NearestIndex returns, for every point, the index of the closest reference
// point. Ties resolve to the lowest index.
func NearestIndex(points, refs []orb.Point, metric geodesy.Metric) ([]int, error) {
	out := make([]int, len(points))
	err := reduceRows(points, refs, metric, func(i int, row []float64) {
		out[i] = floats.MinIdx(row)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reduceRows computes the distance matrix block by block and hands every row
// to reduce. Blocks run concurrently; each writes only its own output rows.
func reduceRows(points, refs []orb.Point, metric geodesy.Metric, reduce func(i int, row []float64)) error {
	if len(refs) == 0 {
		return ErrNoReferences
	}
	if len(points) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(points); lo += blockRows {
		hi := min(lo+blockRows, len(points))
		g.Go(func() error {
			block := mat.NewDense(hi-lo, len(refs), nil)
			fillDistances(block, points[lo:hi], refs, metric)
			for i := range hi - lo {
				reduce(lo+i, block.RawRowView(i))
			}
			return nil
		})
	}
	return g.Wait()
}

// DustExposure is the inverse-distance exposure of a point to the lake
// centroid: 1 / (planar km + 1), capped at 1.
func DustExposure(p, lake orb.Point) float64 {
	return dustFromDistance(geodesy.PlanarPoints(p, lake))
}

func dustFromDistance(km float64) float64 {
	return min(1.0, 1/(km+1))
}

// CellPoints converts grid cells to orb points.
func CellPoints(cells []domain.GridCell) []orb.Point {
	pts := make([]orb.Point, len(cells))
	for i, c := range cells {
		pts[i] = c.Point()
	}
	return pts
}

// Proximity computes road, city and lake distances and dust exposure for every
// cell. The output keeps the order of cells.
func Proximity(cells []domain.GridCell, refs References, cfg ProximityConfig) ([]domain.CellProximity, error) {
	if cfg.CityMetric == "" {
		cfg.CityMetric = DefaultProximityConfig.CityMetric
	}
	cityMetric, ok := geodesy.MetricByName(cfg.CityMetric)
	if !ok {
		return nil, fmt.Errorf("unknown city distance metric %q", cfg.CityMetric)
	}

	pts := CellPoints(cells)
	roadKm, err := NearestDistanceKm(pts, refs.Roads)
	if err != nil {
		return nil, fmt.Errorf("road distance: %w", err)
	}
	cityKm, err := NearestDistance(pts, refs.CityPoints(), cityMetric)
	if err != nil {
		return nil, fmt.Errorf("city distance: %w", err)
	}

	out := make([]domain.CellProximity, len(cells))
	for i, c := range cells {
		lakeKm := geodesy.PlanarPoints(pts[i], refs.Lake)
		out[i] = domain.CellProximity{
			Cell:         c,
			DistToRoadKm: roadKm[i],
			DistToCityKm: cityKm[i],
			DistToLakeKm: lakeKm,
			DustExposure: dustFromDistance(lakeKm),
		}
	}
	return out, nil
}
