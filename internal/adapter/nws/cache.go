package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/observability"
	"github.com/patrickmn/go-cache"
)

// CachedObservations wraps an ObservationSource with an expiring in-memory
// cache keyed by rounded coordinates and date. The cache is safe for
// concurrent use.
type CachedObservations struct {
	inner   domain.ObservationSource
	cache   *cache.Cache
	metrics *observability.Metrics
	hits    atomic.Int64
}

// NewCachedObservations creates a cache decorator around an observation source.
func NewCachedObservations(inner domain.ObservationSource, ttl time.Duration, metrics *observability.Metrics) *CachedObservations {
	return &CachedObservations{
		inner:   inner,
		cache:   cache.New(ttl, 2*ttl),
		metrics: metrics,
	}
}

// Key formats the cache key of a lookup: lat and lon to four decimals and the
// ISO date.
func Key(lat, lon float64, date time.Time) string {
	return fmt.Sprintf("%.4f_%.4f_%s", lat, lon, date.Format(time.DateOnly))
}

// Observation implements domain.ObservationSource.
func (c *CachedObservations) Observation(ctx context.Context, lat, lon float64, date time.Time) (domain.DailyWeather, error) {
	key := Key(lat, lon, date)
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return v.(domain.DailyWeather), nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	w, err := c.inner.Observation(ctx, lat, lon, date)
	if err != nil {
		return w, err
	}
	c.cache.Set(key, w, cache.DefaultExpiration)
	return w, nil
}

// Hits returns the number of lookups served from the cache.
func (c *CachedObservations) Hits() int {
	return int(c.hits.Load())
}

// Len returns the number of unexpired entries.
func (c *CachedObservations) Len() int {
	return c.cache.ItemCount()
}

// SaveFile writes the unexpired entries to path as JSON so a later run can
// start warm.
func (c *CachedObservations) SaveFile(path string) error {
	items := c.cache.Items()
	out := make(map[string]domain.DailyWeather, len(items))
	for k, it := range items {
		out[k] = it.Object.(domain.DailyWeather)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal observation cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write observation cache: %w", err)
	}
	return nil
}

// LoadFile adds the entries saved by SaveFile. A missing file is not an
// error.
func (c *CachedObservations) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read observation cache: %w", err)
	}
	var in map[string]domain.DailyWeather
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, fmt.Errorf("decode observation cache: %w", err)
	}
	for k, w := range in {
		c.cache.Set(k, w, cache.DefaultExpiration)
	}
	return len(in), nil
}
