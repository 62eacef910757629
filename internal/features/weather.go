package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

// Tetens coefficients for saturation vapour pressure over water, in kPa.
const (
	tetensA = 0.6108
	tetensB = 17.27
	tetensC = 237.3
)

// VPDProxy approximates the vapour pressure deficit in kPa:
//
//	0.6108 * exp(17.27 T / (T + 237.3)) * (1 - RH/100)
//
// RH is clamped to [0, 100] and the result is never negative.
func VPDProxy(tempC, rhPct float64) float64 {
	rh := clip(rhPct, 0, 100)
	svp := tetensA * math.Exp(tetensB*tempC/(tempC+tetensC))
	return clip(svp*(1-rh/100), 0, math.Inf(1))
}

// NormalizeDryness divides every VPD proxy by the batch maximum. The result is
// relative to the batch: the same cell scored in a different batch can get a
// different value. A batch whose maximum is zero normalizes to all zeros.
func NormalizeDryness(vpd []float64) []float64 {
	out := make([]float64, len(vpd))
	peak := 0.0
	for _, v := range vpd {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return out
	}
	for i, v := range vpd {
		out[i] = clip(v/peak, 0, 1)
	}
	return out
}

// PrecipFactor is 1 - precip/5 clipped to [0, 1].
func PrecipFactor(precipMm float64) float64 {
	return clip(1-precipMm/5, 0, 1)
}

// WindFactor is wind/20 clipped to [0, 1].
func WindFactor(windKmh float64) float64 {
	return clip(windKmh/20, 0, 1)
}

// LowPrecipDryness is 1.0 below 1 mm of precipitation and 0.5 otherwise.
func LowPrecipDryness(precipMm float64) float64 {
	if precipMm < 1 {
		return 1.0
	}
	return 0.5
}

// DrynessProxy reproduces the classifier's training column, which reduces to
// the constant 1.0 for every temperature.
func DrynessProxy(tempC float64) float64 {
	return (tempC - (tempC - 10)) / 10
}

// Daily derives the day's weather features from one reading. The reading is
// broadcast to every cell of the run. A reading missing any field returns
// domain.ErrMissingWeatherField; an impossible reading is rejected.
func Daily(obs domain.DailyWeather) (domain.DailyFeatures, error) {
	if missing := obs.Missing(); len(missing) > 0 {
		return domain.DailyFeatures{}, fmt.Errorf("%w: %s", domain.ErrMissingWeatherField, strings.Join(missing, ", "))
	}
	if err := obs.Validate(); err != nil {
		return domain.DailyFeatures{}, fmt.Errorf("invalid weather reading: %w", err)
	}

	t, rh, wind, precip := *obs.TempMeanC, *obs.RHMeanPct, *obs.WindMaxKmh, *obs.PrecipMm
	return domain.DailyFeatures{
		Date:             domain.Truncate(obs.Date),
		Month:            int(obs.Date.Month()),
		VPDProxy:         VPDProxy(t, rh),
		DrynessProxy:     DrynessProxy(t),
		PrecipFactor:     PrecipFactor(precip),
		WindFactor:       WindFactor(wind),
		LowPrecipDryness: LowPrecipDryness(precip),
	}, nil
}

// clip bounds v to [lo, hi]. NaN maps to lo.
func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
