package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// DefaultStep is the grid resolution of the reference deployment in degrees.
const DefaultStep = 0.1

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// UtahBounds is the grid region of the reference deployment.
var UtahBounds = BoundingBox{LatMin: 37.0, LatMax: 42.0, LonMin: -114.0, LonMax: -109.0}

// WesternUSBounds is the ingestion clip of the reference deployment.
var WesternUSBounds = BoundingBox{LatMin: 31.0, LatMax: 49.0, LonMin: -125.0, LonMax: -102.0}

// Validate reports an error when the box is empty or not finite.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.LatMin, b.LatMax, b.LonMin, b.LonMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("bounding box has non-finite coordinate")
		}
	}
	if b.LatMin > b.LatMax {
		return fmt.Errorf("bounding box lat_min %.4f > lat_max %.4f", b.LatMin, b.LatMax)
	}
	if b.LonMin > b.LonMax {
		return fmt.Errorf("bounding box lon_min %.4f > lon_max %.4f", b.LonMin, b.LonMax)
	}
	return nil
}

// latticeTolerance is how far v/step may sit from an integer and still count
// as a lattice point.
const latticeTolerance = 1e-6

// OnLattice reports whether v is an integer multiple of step.
func OnLattice(v, step float64) bool {
	q := v / step
	return math.Abs(q-math.Round(q)) < latticeTolerance
}

// CheckAligned reports an error when a corner of the box is not a multiple of
// step. Grid cells start at the lower corner, so an unaligned box yields
// cells whose lattice indices collide.
func (b BoundingBox) CheckAligned(step float64) error {
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"lat_min", b.LatMin},
		{"lat_max", b.LatMax},
		{"lon_min", b.LonMin},
		{"lon_max", b.LonMax},
	} {
		if !OnLattice(c.v, step) {
			return fmt.Errorf("bounding box %s %.6g is not a multiple of step %g", c.name, c.v, step)
		}
	}
	return nil
}

// Bound converts the box to an orb.Bound (x = lon, y = lat).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.LonMin, b.LatMin},
		Max: orb.Point{b.LonMax, b.LatMax},
	}
}

// Contains reports whether the coordinate lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.Bound().Contains(orb.Point{lon, lat})
}

// GridCell is one lattice point of the grid. Lat and Lon are the snapped
// coordinates; LatIdx and LonIdx are the same position as integer multiples of
// the step and are what stage joins compare.
type GridCell struct {
	Lat    float64 `json:"grid_lat"`
	Lon    float64 `json:"grid_lon"`
	LatIdx int64   `json:"-"`
	LonIdx int64   `json:"-"`
}

// Point returns the cell as an orb.Point (x = lon, y = lat).
func (c GridCell) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Key returns the lattice identity of the cell.
func (c GridCell) Key() CellKey {
	return CellKey{LatIdx: c.LatIdx, LonIdx: c.LonIdx}
}

// CellKey is the exact-match join key of a grid cell.
type CellKey struct {
	LatIdx int64
	LonIdx int64
}

// CellDayKey is the join key of a grid cell on a given day. Day is the number
// of days since the Unix epoch.
type CellDayKey struct {
	CellKey
	Day int64
}

// LatticeIndex snaps a coordinate to its nearest grid index.
func LatticeIndex(v, step float64) int64 {
	return int64(math.Round(v / step))
}

// SnapCell snaps a raw coordinate to the nearest grid point.
func SnapCell(lat, lon, step float64) GridCell {
	li := LatticeIndex(lat, step)
	lo := LatticeIndex(lon, step)
	return GridCell{
		Lat:    RoundToStep(float64(li)*step, step),
		Lon:    RoundToStep(float64(lo)*step, step),
		LatIdx: li,
		LonIdx: lo,
	}
}

// RoundToStep rounds v to the number of decimals implied by step
// (0.1 -> 1 decimal, 0.25 -> 2 decimals), which strips float noise such as
// 37.300000000000004.
func RoundToStep(v, step float64) float64 {
	p := math.Pow(10, float64(StepDecimals(step)))
	return math.Round(v*p) / p
}

// StepDecimals returns the number of decimals needed to represent step exactly,
// capped at 9.
func StepDecimals(step float64) int {
	d := 0
	for d < 9 {
		scaled := step * math.Pow(10, float64(d))
		if math.Abs(scaled-math.Round(scaled)) < 1e-9 {
			break
		}
		d++
	}
	return d
}

// DayNumber converts a date to days since the Unix epoch, ignoring the clock
// time and zone offset of t.
func DayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// Truncate returns the UTC midnight of t's calendar date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GridCellDay is a grid cell on one date with its binary ignition label.
type GridCellDay struct {
	Cell     GridCell  `json:"cell"`
	Date     time.Time `json:"date"`
	Ignition int       `json:"ignition"`
}
