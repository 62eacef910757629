// Package noaa loads historical daily station summaries (NOAA Climate Data
// Online CSV exports, metric units) and joins them to fire detections by
// nearest station and date.
package noaa

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/features"
	"github.com/couchcryptid/wildfire-risk-etl/internal/geodesy"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyArchive is returned when no station rows could be loaded.
var ErrEmptyArchive = errors.New("weather archive has no station rows")

var requiredColumns = []string{"STATION", "LATITUDE", "LONGITUDE", "DATE"}

// mpsToKmh converts the archive's m/s wind speeds.
const mpsToKmh = 3.6

// Station is one archive station.
type Station struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

type stationDate struct {
	station string
	day     int64
}

type row struct {
	day     domain.StationDay
	nonNull int
}

// Archive is a deduplicated set of station-days.
type Archive struct {
	Stations []Station
	days     map[stationDate]domain.StationDay
}

// Len returns the number of unique station-days.
func (a *Archive) Len() int {
	return len(a.days)
}

// Day returns the reading of station on date.
func (a *Archive) Day(station string, date time.Time) (domain.StationDay, bool) {
	d, ok := a.days[stationDate{station: station, day: domain.DayNumber(date)}]
	return d, ok
}

// LoadArchive reads every *.csv file in dir concurrently. Files that cannot be
// parsed are logged and skipped. When a (station, date) pair appears more
// than once the row with the most non-empty fields wins; ties keep the first
// in file-name order.
func LoadArchive(ctx context.Context, dir string, logger *slog.Logger) (*Archive, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	slices.Sort(paths)

	perFile := make([][]row, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := readFile(p)
			if err != nil {
				logger.Warn("skipping weather archive file", "file", p, "error", err)
				return nil
			}
			perFile[i] = rows
			logger.Debug("read weather archive file", "file", filepath.Base(p), "rows", len(rows))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make(map[stationDate]row)
	stations := make(map[string]Station)
	total := 0
	for _, rows := range perFile {
		for _, r := range rows {
			total++
			k := stationDate{station: r.day.Station, day: domain.DayNumber(r.day.Date)}
			if cur, ok := best[k]; !ok || r.nonNull > cur.nonNull {
				best[k] = r
			}
			if _, ok := stations[r.day.Station]; !ok {
				stations[r.day.Station] = Station{ID: r.day.Station, Name: r.day.Name, Lat: r.day.Lat, Lon: r.day.Lon}
			}
		}
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrEmptyArchive)
	}

	a := &Archive{days: make(map[stationDate]domain.StationDay, len(best))}
	for k, r := range best {
		a.days[k] = r.day
	}
	for _, s := range stations {
		a.Stations = append(a.Stations, s)
	}
	slices.SortFunc(a.Stations, func(x, y Station) int { return strings.Compare(x.ID, y.ID) })

	logger.Info("weather archive loaded",
		"files", len(paths), "raw_rows", total, "station_days", len(best), "stations", len(a.Stations))
	return a, nil
}

func readFile(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return read(f)
}

func read(r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := colIdx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		r, ok := parseRow(rec, colIdx)
		if !ok {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRow(rec []string, colIdx map[string]int) (row, bool) {
	station := get(rec, colIdx, "STATION")
	lat, err1 := strconv.ParseFloat(get(rec, colIdx, "LATITUDE"), 64)
	lon, err2 := strconv.ParseFloat(get(rec, colIdx, "LONGITUDE"), 64)
	date, err3 := parseDate(get(rec, colIdx, "DATE"))
	if station == "" || err1 != nil || err2 != nil || err3 != nil || !finite(lat) || !finite(lon) {
		return row{}, false
	}

	w := domain.DailyWeather{Date: date, Lat: lat, Lon: lon}
	w.TempMeanC = optional(rec, colIdx, "TAVG")
	if w.TempMeanC == nil {
		tmax, tmin := optional(rec, colIdx, "TMAX"), optional(rec, colIdx, "TMIN")
		if tmax != nil && tmin != nil {
			w.TempMeanC = domain.Float((*tmax + *tmin) / 2)
		}
	}
	w.RHMeanPct = optional(rec, colIdx, "RHAV")
	wind := optional(rec, colIdx, "WSF2")
	if wind == nil {
		wind = optional(rec, colIdx, "AWND")
	}
	if wind != nil {
		w.WindMaxKmh = domain.Float(*wind * mpsToKmh)
	}
	w.PrecipMm = optional(rec, colIdx, "PRCP")

	nonNull := 0
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			nonNull++
		}
	}
	return row{
		day:     domain.StationDay{Station: station, Name: get(rec, colIdx, "NAME"), DailyWeather: w},
		nonNull: nonNull,
	}, true
}

// parseDate accepts plain dates and the timestamp form some exports use.
func parseDate(s string) (time.Time, error) {
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	return time.Parse(time.DateOnly, s)
}

func optional(rec []string, colIdx map[string]int, col string) *float64 {
	s := get(rec, colIdx, col)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func get(rec []string, colIdx map[string]int, col string) string {
	i, ok := colIdx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// JoinStats counts join outcomes.
type JoinStats struct {
	Matched   int
	Unmatched int
}

// JoinNearest attaches to every detection the reading of its nearest station
// (planar distance) on the detection date. Detections whose station has no
// reading that day keep empty weather, as in a left join.
func JoinNearest(dets []domain.FireDetection, a *Archive) ([]domain.DetectionWeather, JoinStats, error) {
	var stats JoinStats
	if a == nil || len(a.Stations) == 0 {
		return nil, stats, ErrEmptyArchive
	}
	pts := make([]orb.Point, len(dets))
	for i, d := range dets {
		pts[i] = orb.Point{d.Lon, d.Lat}
	}
	refs := make([]orb.Point, len(a.Stations))
	for i, s := range a.Stations {
		refs[i] = orb.Point{s.Lon, s.Lat}
	}
	idx, err := features.NearestIndex(pts, refs, geodesy.Planar)
	if err != nil {
		return nil, stats, fmt.Errorf("nearest station: %w", err)
	}

	out := make([]domain.DetectionWeather, len(dets))
	for i, d := range dets {
		st := a.Stations[idx[i]]
		dw := domain.DetectionWeather{Detection: d, Station: st.ID}
		if day, ok := a.Day(st.ID, d.AcqDate); ok {
			dw.Weather = day.DailyWeather
			stats.Matched++
		} else {
			dw.Weather = domain.DailyWeather{Date: domain.Truncate(d.AcqDate), Lat: st.Lat, Lon: st.Lon}
			stats.Unmatched++
		}
		out[i] = dw
	}
	return out, stats, nil
}
