// Package firms reads NASA FIRMS active-fire CSV exports (MODIS or VIIRS
// archive and near-real-time files) into fire detections.
package firms

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// Columns every export must carry. Brightness is "brightness" in MODIS files
// and "bright_ti4" in VIIRS files.
var requiredColumns = []string{"latitude", "longitude", "acq_date", "confidence"}

var brightnessColumns = []string{"brightness", "bright_ti4"}

// Options filter rows at read time.
type Options struct {
	Bounds            domain.BoundingBox
	ExcludeConfidence string
}

// DefaultOptions clips to the western US and drops low-confidence rows.
var DefaultOptions = Options{Bounds: domain.WesternUSBounds, ExcludeConfidence: domain.LowConfidence}

// Read parses one CSV stream. source is recorded on every detection. Rows
// outside the bounds, rows with the excluded confidence and rows that do not
// parse are dropped and counted.
func Read(r io.Reader, source string, opts Options) ([]domain.FireDetection, domain.IngestStats, error) {
	stats := domain.IngestStats{PerSourceCount: map[string]int{}}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := colIdx[c]; !ok {
			return nil, stats, fmt.Errorf("missing column %q", c)
		}
	}
	brightCol := ""
	for _, c := range brightnessColumns {
		if _, ok := colIdx[c]; ok {
			brightCol = c
			break
		}
	}

	var out []domain.FireDetection
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			stats.Read++
			stats.Malformed++
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row: %w", err)
		}
		stats.Read++

		d, ok := parseRow(row, colIdx, brightCol)
		if !ok {
			stats.Malformed++
			continue
		}
		if !opts.Bounds.Contains(d.Lat, d.Lon) {
			stats.OutOfBounds++
			continue
		}
		if opts.ExcludeConfidence != "" && strings.EqualFold(d.Confidence, opts.ExcludeConfidence) {
			stats.LowConfidence++
			continue
		}
		d.Source = source
		out = append(out, d)
	}
	stats.Accepted = len(out)
	stats.PerSourceCount[source] = len(out)
	return out, stats, nil
}

func parseRow(row []string, colIdx map[string]int, brightCol string) (domain.FireDetection, bool) {
	lat, err1 := strconv.ParseFloat(get(row, colIdx, "latitude"), 64)
	lon, err2 := strconv.ParseFloat(get(row, colIdx, "longitude"), 64)
	date, err3 := time.Parse(time.DateOnly, get(row, colIdx, "acq_date"))
	if err1 != nil || err2 != nil || err3 != nil {
		return domain.FireDetection{}, false
	}
	d := domain.FireDetection{
		Lat:        lat,
		Lon:        lon,
		AcqDate:    date,
		Confidence: get(row, colIdx, "confidence"),
	}
	// Brightness and FRP are informational; blanks read as zero.
	if brightCol != "" {
		d.Brightness, _ = strconv.ParseFloat(get(row, colIdx, brightCol), 64)
	}
	d.FRP, _ = strconv.ParseFloat(get(row, colIdx, "frp"), 64)
	return d, true
}

func get(row []string, colIdx map[string]int, col string) string {
	i, ok := colIdx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadFile reads one export, recording its base name as the source.
func ReadFile(path string, opts Options) ([]domain.FireDetection, domain.IngestStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IngestStats{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path), opts)
}

// ReadDir reads every *.csv file in dir in name order. A file that cannot be
// read is logged and skipped; the run fails only when no file could be read.
func ReadDir(dir string, opts Options, logger *slog.Logger) ([]domain.FireDetection, domain.IngestStats, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, domain.IngestStats{}, fmt.Errorf("list %s: %w", dir, err)
	}
	slices.Sort(paths)
	if len(paths) == 0 {
		return nil, domain.IngestStats{}, fmt.Errorf("no CSV files in %s", dir)
	}

	total := domain.IngestStats{PerSourceCount: map[string]int{}}
	var all []domain.FireDetection
	read := 0
	for _, p := range paths {
		dets, stats, err := ReadFile(p, opts)
		if err != nil {
			logger.Warn("skipping detection file", "file", p, "error", err)
			continue
		}
		read++
		all = append(all, dets...)
		merge(&total, stats)
		logger.Info("read detection file", "file", filepath.Base(p), "accepted", stats.Accepted, "dropped", stats.Dropped())
	}
	if read == 0 {
		return nil, total, fmt.Errorf("none of the %d CSV files in %s could be read", len(paths), dir)
	}
	return all, total, nil
}

func merge(dst *domain.IngestStats, src domain.IngestStats) {
	dst.Read += src.Read
	dst.Accepted += src.Accepted
	dst.OutOfBounds += src.OutOfBounds
	dst.LowConfidence += src.LowConfidence
	dst.Malformed += src.Malformed
	for k, v := range src.PerSourceCount {
		dst.PerSourceCount[k] += v
	}
}
