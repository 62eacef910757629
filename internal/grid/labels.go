package grid

import (
	"errors"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// LabelTable is the grid × date cross product in columnar form. Row r covers
// Cells[r / len(Dates)] on Dates[r % len(Dates)]; Ignition[r] is its label.
type LabelTable struct {
	Cells    []domain.GridCell
	Dates    []time.Time
	Ignition []uint8
}

// LabelStats summarizes a label run.
type LabelStats struct {
	Rows              int `json:"rows"`
	Positives         int `json:"positives"`
	PositiveGroups    int `json:"positive_groups"`
	Detections        int `json:"detections"`
	UnmatchedSnapped  int `json:"unmatched_snapped"`
	UnmatchedDetected int `json:"unmatched_detections"`
}

// Len returns the number of cell-day rows.
func (t *LabelTable) Len() int {
	return len(t.Ignition)
}

// Row materializes row r.
func (t *LabelTable) Row(r int) domain.GridCellDay {
	d := len(t.Dates)
	return domain.GridCellDay{
		Cell:     t.Cells[r/d],
		Date:     t.Dates[r%d],
		Ignition: int(t.Ignition[r]),
	}
}

// Positives counts rows labelled 1.
func (t *LabelTable) Positives() int {
	n := 0
	for _, v := range t.Ignition {
		n += int(v)
	}
	return n
}

// Labels snaps each detection to its nearest grid point, groups the snapped
// detections by (cell, date) and left-joins the full grid × dates cross product
// against that positive set. Every cell-day without detections is present with
// ignition 0. Detections that snap outside the grid or fall outside dates are
// dropped and counted in the stats.
func Labels(detections []domain.FireDetection, cells []domain.GridCell, dates []time.Time, step float64) (*LabelTable, LabelStats, error) {
	if len(cells) == 0 {
		return nil, LabelStats{}, errors.New("label grid is empty")
	}
	if len(dates) == 0 {
		return nil, LabelStats{}, errors.New("label date range is empty")
	}
	if step <= 0 {
		return nil, LabelStats{}, ErrInvalidStep
	}

	positives := make(map[domain.CellDayKey]int)
	for _, d := range detections {
		snapped := domain.SnapCell(d.Lat, d.Lon, step)
		key := domain.CellDayKey{CellKey: snapped.Key(), Day: domain.DayNumber(d.AcqDate)}
		positives[key]++
	}

	cellIndex := make(map[domain.CellKey]int, len(cells))
	for i, c := range cells {
		cellIndex[c.Key()] = i
	}
	dayIndex := make(map[int64]int, len(dates))
	for i, d := range dates {
		dayIndex[domain.DayNumber(d)] = i
	}
	nDates := len(dates)

	table := &LabelTable{
		Cells:    cells,
		Dates:    dates,
		Ignition: make([]uint8, len(cells)*nDates),
	}
	stats := LabelStats{
		Rows:           table.Len(),
		PositiveGroups: len(positives),
		Detections:     len(detections),
	}

	for key, count := range positives {
		g, cellOK := cellIndex[key.CellKey]
		day, dayOK := dayIndex[key.Day]
		if !cellOK || !dayOK {
			stats.UnmatchedSnapped++
			stats.UnmatchedDetected += count
			continue
		}
		table.Ignition[g*nDates+day] = 1
		stats.Positives++
	}
	return table, stats, nil
}
