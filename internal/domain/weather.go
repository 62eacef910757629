package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMissingWeatherField is returned when a weather reading lacks a field a
// feature needs. It marks a partial record: the caller drops the feature for
// that record and keeps going.
var ErrMissingWeatherField = errors.New("weather field missing")

// DailyWeather is one day's weather at a point. Nil fields were not reported.
type DailyWeather struct {
	Date       time.Time `json:"date"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	TempMeanC  *float64  `json:"temperature_mean_c"`
	RHMeanPct  *float64  `json:"relative_humidity_mean_pct"`
	WindMaxKmh *float64  `json:"wind_speed_max_kmh"`
	PrecipMm   *float64  `json:"precipitation_sum_mm"`
}

// Float returns a pointer to v, for building readings in code and tests.
func Float(v float64) *float64 {
	return &v
}

// Complete reports whether all four fields are present.
func (w DailyWeather) Complete() bool {
	return w.TempMeanC != nil && w.RHMeanPct != nil && w.WindMaxKmh != nil && w.PrecipMm != nil
}

// Missing lists the names of absent fields.
func (w DailyWeather) Missing() []string {
	var missing []string
	if w.TempMeanC == nil {
		missing = append(missing, "temperature_mean_c")
	}
	if w.RHMeanPct == nil {
		missing = append(missing, "relative_humidity_mean_pct")
	}
	if w.WindMaxKmh == nil {
		missing = append(missing, "wind_speed_max_kmh")
	}
	if w.PrecipMm == nil {
		missing = append(missing, "precipitation_sum_mm")
	}
	return missing
}

// Validate rejects non-finite and physically impossible values. Absent fields
// pass.
func (w DailyWeather) Validate() error {
	for _, v := range []*float64{w.TempMeanC, w.RHMeanPct, w.WindMaxKmh, w.PrecipMm} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return errors.New("weather reading has a non-finite value")
		}
	}
	if w.PrecipMm != nil && *w.PrecipMm < 0 {
		return fmt.Errorf("negative precipitation %.2f mm", *w.PrecipMm)
	}
	if w.RHMeanPct != nil && (*w.RHMeanPct < 0 || *w.RHMeanPct > 100) {
		return fmt.Errorf("relative humidity %.2f%% outside [0, 100]", *w.RHMeanPct)
	}
	if w.WindMaxKmh != nil && *w.WindMaxKmh < 0 {
		return fmt.Errorf("negative wind speed %.2f km/h", *w.WindMaxKmh)
	}
	if w.TempMeanC != nil && *w.TempMeanC <= -237.3 {
		return fmt.Errorf("temperature %.2f °C below the Tetens domain", *w.TempMeanC)
	}
	return nil
}

// StationDay is one deduplicated daily row from the station archive.
type StationDay struct {
	Station string `json:"station"`
	Name    string `json:"name"`
	DailyWeather
}

// FetchStats counts per-record outcomes of an external lookup batch.
type FetchStats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	CacheHits int `json:"cache_hits"`
}

// ForecastSource returns today's daily forecast for a point.
type ForecastSource interface {
	DailyForecast(ctx context.Context, lat, lon float64) (DailyWeather, error)
}

// ObservationSource returns the latest observation near a point for a date.
type ObservationSource interface {
	Observation(ctx context.Context, lat, lon float64, date time.Time) (DailyWeather, error)
}

// DetectionWeather is a detection joined to the weather at its location and
// date. Station is empty when the reading did not come from a station archive.
type DetectionWeather struct {
	Detection FireDetection `json:"detection"`
	Station   string        `json:"station,omitempty"`
	Weather   DailyWeather  `json:"weather"`
}
