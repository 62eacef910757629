// Package grid builds the fixed-resolution lattice over a bounding box and the
// grid × date ignition label table.
package grid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// ErrInvalidStep is returned for a non-positive or non-finite resolution.
var ErrInvalidStep = errors.New("grid step must be a positive finite number")

// ErrUnalignedBounds is returned when the box corners are off the step
// lattice.
var ErrUnalignedBounds = errors.New("grid bounds not aligned to step")

// axisTolerance absorbs float error when deciding whether the last lattice
// value still fits under the upper bound.
const axisTolerance = 1e-9

// Axis returns the values min, min+step, ... <= max, each rounded to the
// precision of step.
func Axis(lo, hi, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, ErrInvalidStep
	}
	if hi < lo {
		return nil, fmt.Errorf("axis upper bound %.4f below lower bound %.4f", hi, lo)
	}
	n := int(math.Floor((hi-lo)/step+axisTolerance)) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = domain.RoundToStep(lo+float64(i)*step, step)
	}
	return values, nil
}

// Generate returns every lattice point of box at the given step, latitude
// major. No cell is skipped; the grid is purely geometric. Every corner of box
// must be a multiple of step.
func Generate(box domain.BoundingBox, step float64) ([]domain.GridCell, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, ErrInvalidStep
	}
	if err := box.CheckAligned(step); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnalignedBounds, err)
	}
	lats, err := Axis(box.LatMin, box.LatMax, step)
	if err != nil {
		return nil, fmt.Errorf("latitude axis: %w", err)
	}
	lons, err := Axis(box.LonMin, box.LonMax, step)
	if err != nil {
		return nil, fmt.Errorf("longitude axis: %w", err)
	}

	latIdx := make([]int64, len(lats))
	for i, v := range lats {
		latIdx[i] = domain.LatticeIndex(v, step)
	}
	lonIdx := make([]int64, len(lons))
	for j, v := range lons {
		lonIdx[j] = domain.LatticeIndex(v, step)
	}

	cells := make([]domain.GridCell, len(lats)*len(lons))
	for i := range lats {
		row := cells[i*len(lons) : (i+1)*len(lons)]
		for j := range row {
			row[j] = domain.GridCell{Lat: lats[i], Lon: lons[j], LatIdx: latIdx[i], LonIdx: lonIdx[j]}
		}
	}
	return cells, nil
}

// DateRange returns every calendar day from..to inclusive at UTC midnight.
func DateRange(from, to time.Time) ([]time.Time, error) {
	from, to = domain.Truncate(from), domain.Truncate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("date range end %s before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	n := int(domain.DayNumber(to)-domain.DayNumber(from)) + 1
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = from.AddDate(0, 0, i)
	}
	return dates, nil
}

// DateSpan returns the earliest and latest acquisition dates. ok is false when
// detections is empty.
func DateSpan(detections []domain.FireDetection) (from, to time.Time, ok bool) {
	for i, d := range detections {
		day := domain.Truncate(d.AcqDate)
		if i == 0 || day.Before(from) {
			from = day
		}
		if i == 0 || day.After(to) {
			to = day
		}
	}
	return from, to, len(detections) > 0
}
