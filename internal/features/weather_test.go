package features

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(t, rh, wind, precip float64) domain.DailyWeather {
	return domain.DailyWeather{
		Date:       time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC),
		TempMeanC:  domain.Float(t),
		RHMeanPct:  domain.Float(rh),
		WindMaxKmh: domain.Float(wind),
		PrecipMm:   domain.Float(precip),
	}
}

func TestDaily_ExampleScenario(t *testing.T) {
	f, err := Daily(reading(5.4, 48, 16.6, 0))
	require.NoError(t, err)

	// 0.6108 * exp(17.27*5.4/242.7) * 0.52
	assert.InDelta(t, 0.4664, f.VPDProxy, 1e-3)
	assert.Equal(t, 1.0, f.PrecipFactor)
	assert.InDelta(t, 0.83, f.WindFactor, 1e-9)
	assert.Equal(t, 1.0, f.LowPrecipDryness)
	assert.Equal(t, 1.0, f.DrynessProxy)
	assert.Equal(t, 10, f.Month)
	assert.Equal(t, time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC), f.Date)
}

func TestDaily_MissingField(t *testing.T) {
	obs := reading(20, 30, 10, 0)
	obs.WindMaxKmh = nil

	_, err := Daily(obs)
	require.ErrorIs(t, err, domain.ErrMissingWeatherField)
	assert.Contains(t, err.Error(), "wind_speed_max_kmh")
}

func TestDaily_RejectsNegativePrecipitation(t *testing.T) {
	_, err := Daily(reading(20, 30, 10, -1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precipitation")
}

func TestVPDProxy_NeverNegative(t *testing.T) {
	assert.Equal(t, 0.0, VPDProxy(25, 100))
	assert.Equal(t, 0.0, VPDProxy(25, 140))
	assert.Greater(t, VPDProxy(25, -20), 0.0)
	assert.Equal(t, VPDProxy(25, 0), VPDProxy(25, -20))
}

func TestFactors_Boundaries(t *testing.T) {
	assert.Equal(t, 1.0, PrecipFactor(0))
	assert.InDelta(t, 0.5, PrecipFactor(2.5), 1e-12)
	assert.Equal(t, 0.0, PrecipFactor(5))
	assert.Equal(t, 0.0, PrecipFactor(500))

	assert.Equal(t, 0.0, WindFactor(0))
	assert.InDelta(t, 0.5, WindFactor(10), 1e-12)
	assert.Equal(t, 1.0, WindFactor(20))
	assert.Equal(t, 1.0, WindFactor(200))

	assert.Equal(t, 1.0, LowPrecipDryness(0.99))
	assert.Equal(t, 0.5, LowPrecipDryness(1))
}

func TestNormalizeDryness(t *testing.T) {
	out := NormalizeDryness([]float64{0.5, 1.0, 0.25, 0})
	assert.Equal(t, []float64{0.5, 1.0, 0.25, 0}, out)

	out = NormalizeDryness([]float64{2, 4})
	assert.Equal(t, []float64{0.5, 1}, out)

	assert.Equal(t, []float64{0, 0}, NormalizeDryness([]float64{0, 0}))
	assert.Empty(t, NormalizeDryness(nil))
}

func TestNormalizeDryness_IsBatchRelative(t *testing.T) {
	full := NormalizeDryness([]float64{1, 2, 4})
	subset := NormalizeDryness([]float64{1, 2})
	assert.InDelta(t, 0.5, full[1], 1e-12)
	assert.InDelta(t, 1.0, subset[1], 1e-12)
}

func TestDaily_FeatureBoundsUnderRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	vpd := make([]float64, 0, 5000)
	for range 5000 {
		obs := reading(
			rng.Float64()*90-40,
			rng.Float64()*100,
			rng.Float64()*200,
			rng.Float64()*500,
		)
		f, err := Daily(obs)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, f.VPDProxy, 0.0)
		assert.False(t, math.IsNaN(f.VPDProxy))
		assert.True(t, f.PrecipFactor >= 0 && f.PrecipFactor <= 1, "precip_factor %v", f.PrecipFactor)
		assert.True(t, f.WindFactor >= 0 && f.WindFactor <= 1, "wind_factor %v", f.WindFactor)
		assert.Contains(t, []float64{0.5, 1.0}, f.LowPrecipDryness)
		vpd = append(vpd, f.VPDProxy)
	}
	for _, d := range NormalizeDryness(vpd) {
		assert.True(t, d >= 0 && d <= 1, "dryness %v", d)
	}
}

func TestDaily_AdversarialExtremes(t *testing.T) {
	for _, obs := range []domain.DailyWeather{
		reading(-40, 0, 0, 0),
		reading(50, 0, 200, 0),
		reading(50, 100, 0, 500),
		reading(-40, 100, 200, 500),
		reading(-237, 0, 0, 0),
	} {
		f, err := Daily(obs)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.VPDProxy, 0.0)
		assert.False(t, math.IsInf(f.VPDProxy, 0))
		assert.True(t, f.PrecipFactor >= 0 && f.PrecipFactor <= 1)
		assert.True(t, f.WindFactor >= 0 && f.WindFactor <= 1)
	}
}
