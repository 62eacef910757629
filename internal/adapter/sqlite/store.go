// Package sqlite persists the pipeline's tables in a local SQLite file. Each
// derived table is regenerated wholesale: a replace drops the table, recreates
// it and bulk-inserts the new rows in one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/grid"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// ErrTableMissing is returned when a stage reads a table that an earlier
// stage has not produced yet.
var ErrTableMissing = errors.New("table not found")

// Table names.
const (
	TableDetections       = "fire_detections"
	TableLabels           = "grid_labels"
	TableProximity        = "grid_proximity"
	TableDetectionWeather = "detection_weather"
)

// Store is a SQLite-backed table store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. The directory is
// created when missing.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck,gosec // ping error takes precedence
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// HasTable reports whether name exists.
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up table %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *Store) requireTable(ctx context.Context, name string) error {
	ok, err := s.HasTable(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableMissing, name)
	}
	return nil
}

// replaceTable drops and recreates table with ddl, then inserts n rows built
// by row, all in one transaction.
func (s *Store) replaceTable(ctx context.Context, table, ddl, insert string, n int, row func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i := range n {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}

// ReplaceDetections regenerates the detection table.
func (s *Store) ReplaceDetections(ctx context.Context, dets []domain.FireDetection) error {
	const ddl = `CREATE TABLE ` + TableDetections + ` (
		latitude    REAL NOT NULL,
		longitude   REAL NOT NULL,
		acq_date    TEXT NOT NULL,
		brightness  REAL,
		frp         REAL,
		confidence  TEXT,
		source_file TEXT
	)`
	const insert = `INSERT INTO ` + TableDetections +
		` (latitude, longitude, acq_date, brightness, frp, confidence, source_file) VALUES (?, ?, ?, ?, ?, ?, ?)`
	return s.replaceTable(ctx, TableDetections, ddl, insert, len(dets), func(i int) []any {
		d := dets[i]
		return []any{d.Lat, d.Lon, formatDate(d.AcqDate), d.Brightness, d.FRP, d.Confidence, d.Source}
	})
}

// Detections returns the stored detections inside box, ordered by date.
func (s *Store) Detections(ctx context.Context, box domain.BoundingBox) ([]domain.FireDetection, error) {
	if err := s.requireTable(ctx, TableDetections); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude, acq_date, brightness, frp, confidence, source_file
		FROM `+TableDetections+`
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		ORDER BY acq_date, rowid`,
		box.LatMin, box.LatMax, box.LonMin, box.LonMax)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []domain.FireDetection
	for rows.Next() {
		var (
			d    domain.FireDetection
			date string
		)
		if err := rows.Scan(&d.Lat, &d.Lon, &date, &d.Brightness, &d.FRP, &d.Confidence, &d.Source); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		if d.AcqDate, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DateCount is the number of detections on one day.
type DateCount struct {
	Date  time.Time
	Count int
}

// DetectionCountsByDate returns per-day detection counts in date order.
func (s *Store) DetectionCountsByDate(ctx context.Context) ([]DateCount, error) {
	if err := s.requireTable(ctx, TableDetections); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT acq_date, COUNT(*) FROM `+TableDetections+` GROUP BY acq_date ORDER BY acq_date`)
	if err != nil {
		return nil, fmt.Errorf("query detection counts: %w", err)
	}
	defer rows.Close()

	var out []DateCount
	for rows.Next() {
		var (
			date string
			dc   DateCount
		)
		if err := rows.Scan(&date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan detection count: %w", err)
		}
		if dc.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// ReplaceLabels regenerates the grid × date label table.
func (s *Store) ReplaceLabels(ctx context.Context, t *grid.LabelTable) error {
	const ddl = `CREATE TABLE ` + TableLabels + ` (
		grid_lat REAL    NOT NULL,
		grid_lon REAL    NOT NULL,
		lat_idx  INTEGER NOT NULL,
		lon_idx  INTEGER NOT NULL,
		date     TEXT    NOT NULL,
		ignition INTEGER NOT NULL
	)`
	const insert = `INSERT INTO ` + TableLabels +
		` (grid_lat, grid_lon, lat_idx, lon_idx, date, ignition) VALUES (?, ?, ?, ?, ?, ?)`

	dates := make([]string, len(t.Dates))
	for i, d := range t.Dates {
		dates[i] = formatDate(d)
	}
	nd := len(t.Dates)
	return s.replaceTable(ctx, TableLabels, ddl, insert, t.Len(), func(r int) []any {
		c := t.Cells[r/nd]
		return []any{c.Lat, c.Lon, c.LatIdx, c.LonIdx, dates[r%nd], t.Ignition[r]}
	})
}

// LabelSummary returns the row and positive counts of the label table.
func (s *Store) LabelSummary(ctx context.Context) (rows, positives int, err error) {
	if err := s.requireTable(ctx, TableLabels); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(ignition), 0) FROM `+TableLabels).Scan(&rows, &positives)
	if err != nil {
		return 0, 0, fmt.Errorf("summarize labels: %w", err)
	}
	return rows, positives, nil
}

// ReplaceProximity regenerates the per-cell proximity table.
func (s *Store) ReplaceProximity(ctx context.Context, cells []domain.CellProximity) error {
	const ddl = `CREATE TABLE ` + TableProximity + ` (
		grid_lat        REAL    NOT NULL,
		grid_lon        REAL    NOT NULL,
		lat_idx         INTEGER NOT NULL,
		lon_idx         INTEGER NOT NULL,
		dist_to_road_km REAL    NOT NULL,
		dist_to_city_km REAL    NOT NULL,
		dist_to_lake_km REAL    NOT NULL,
		dust_exposure   REAL    NOT NULL,
		PRIMARY KEY (lat_idx, lon_idx)
	)`
	const insert = `INSERT INTO ` + TableProximity +
		` (grid_lat, grid_lon, lat_idx, lon_idx, dist_to_road_km, dist_to_city_km, dist_to_lake_km, dust_exposure)` +
		` VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return s.replaceTable(ctx, TableProximity, ddl, insert, len(cells), func(i int) []any {
		p := cells[i]
		return []any{p.Cell.Lat, p.Cell.Lon, p.Cell.LatIdx, p.Cell.LonIdx,
			p.DistToRoadKm, p.DistToCityKm, p.DistToLakeKm, p.DustExposure}
	})
}

// ProximityGrid returns the proximity table in latitude-major order.
func (s *Store) ProximityGrid(ctx context.Context) ([]domain.CellProximity, error) {
	if err := s.requireTable(ctx, TableProximity); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT grid_lat, grid_lon, lat_idx, lon_idx, dist_to_road_km, dist_to_city_km, dist_to_lake_km, dust_exposure
		FROM `+TableProximity+`
		ORDER BY lat_idx, lon_idx`)
	if err != nil {
		return nil, fmt.Errorf("query proximity: %w", err)
	}
	defer rows.Close()

	var out []domain.CellProximity
	for rows.Next() {
		var p domain.CellProximity
		if err := rows.Scan(&p.Cell.Lat, &p.Cell.Lon, &p.Cell.LatIdx, &p.Cell.LonIdx,
			&p.DistToRoadKm, &p.DistToCityKm, &p.DistToLakeKm, &p.DustExposure); err != nil {
			return nil, fmt.Errorf("scan proximity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceDetectionWeather regenerates the detection × weather join table.
func (s *Store) ReplaceDetectionWeather(ctx context.Context, rows []domain.DetectionWeather) error {
	const ddl = `CREATE TABLE ` + TableDetectionWeather + ` (
		latitude                   REAL NOT NULL,
		longitude                  REAL NOT NULL,
		acq_date                   TEXT NOT NULL,
		station                    TEXT,
		temperature_mean_c         REAL,
		relative_humidity_mean_pct REAL,
		wind_speed_max_kmh         REAL,
		precipitation_sum_mm       REAL
	)`
	const insert = `INSERT INTO ` + TableDetectionWeather +
		` (latitude, longitude, acq_date, station, temperature_mean_c, relative_humidity_mean_pct,` +
		` wind_speed_max_kmh, precipitation_sum_mm) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return s.replaceTable(ctx, TableDetectionWeather, ddl, insert, len(rows), func(i int) []any {
		r := rows[i]
		w := r.Weather
		return []any{r.Detection.Lat, r.Detection.Lon, formatDate(r.Detection.AcqDate), r.Station,
			nullFloat(w.TempMeanC), nullFloat(w.RHMeanPct), nullFloat(w.WindMaxKmh), nullFloat(w.PrecipMm)}
	})
}

// DetectionWeather returns the stored detection × weather rows.
func (s *Store) DetectionWeather(ctx context.Context) ([]domain.DetectionWeather, error) {
	if err := s.requireTable(ctx, TableDetectionWeather); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude, acq_date, station, temperature_mean_c, relative_humidity_mean_pct,
		       wind_speed_max_kmh, precipitation_sum_mm
		FROM `+TableDetectionWeather+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query detection weather: %w", err)
	}
	defer rows.Close()

	var out []domain.DetectionWeather
	for rows.Next() {
		var (
			r                      domain.DetectionWeather
			date                   string
			temp, rh, wind, precip sql.NullFloat64
		)
		if err := rows.Scan(&r.Detection.Lat, &r.Detection.Lon, &date, &r.Station, &temp, &rh, &wind, &precip); err != nil {
			return nil, fmt.Errorf("scan detection weather: %w", err)
		}
		if r.Detection.AcqDate, err = parseDate(date); err != nil {
			return nil, err
		}
		r.Weather = domain.DailyWeather{
			Date:       r.Detection.AcqDate,
			Lat:        r.Detection.Lat,
			Lon:        r.Detection.Lon,
			TempMeanC:  floatPtr(temp),
			RHMeanPct:  floatPtr(rh),
			WindMaxKmh: floatPtr(wind),
			PrecipMm:   floatPtr(precip),
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
