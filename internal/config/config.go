package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
	"github.com/couchcryptid/wildfire-risk-etl/internal/geodesy"
	"github.com/couchcryptid/wildfire-risk-etl/internal/risk"
	"github.com/robfig/cron/v3"
)

// Scorer names accepted by SCORER.
const (
	ScorerFormula    = "formula"
	ScorerClassifier = "classifier"
	ScorerDemo       = "demo"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Storage and input locations.
	DBPath            string
	FIRMSDir          string
	WeatherArchiveDir string
	ReferencesPath    string
	PayloadPath       string

	// Grid.
	GridBounds   domain.BoundingBox
	IngestBounds domain.BoundingBox
	GridStep     float64
	CityMetric   string

	// Scoring and display.
	Scorer        string
	Weights       string
	ModelPath     string
	ModelMetaPath string
	DemoMode      bool
	Threshold     float64
	MaxMarkers    int
	Seed          uint64

	// Reference points.
	LakeLat     float64
	LakeLon     float64
	ForecastLat float64
	ForecastLon float64

	// Forecast source.
	ForecastURL      string
	ForecastTimeout  time.Duration
	ForecastSchedule string

	// Live incident feed (best effort).
	IncidentsEnabled bool
	IncidentURL      string
	IncidentState    string
	IncidentMaxAge   time.Duration
	IncidentTimeout  time.Duration

	// Per-point observations.
	NWSBaseURL   string
	NWSUserAgent string
	NWSRate      float64
	NWSCacheTTL  time.Duration
	NWSCachePath string
	NWSTimeout   time.Duration

	// Optional payload publication.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var p parser
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath:            sharedcfg.EnvOrDefault("DB_PATH", "data/wildfire.db"),
		FIRMSDir:          sharedcfg.EnvOrDefault("FIRMS_DIR", "data/raw/firms"),
		WeatherArchiveDir: sharedcfg.EnvOrDefault("WEATHER_ARCHIVE_DIR", "data/raw/noaa"),
		ReferencesPath:    os.Getenv("REFERENCES_PATH"),
		PayloadPath:       sharedcfg.EnvOrDefault("PAYLOAD_PATH", "output/risk_payload.json"),

		GridBounds:   p.bounds("GRID_BOUNDS", domain.UtahBounds),
		IngestBounds: p.bounds("INGEST_BOUNDS", domain.WesternUSBounds),
		GridStep:     p.float("GRID_STEP", domain.DefaultStep),
		CityMetric:   sharedcfg.EnvOrDefault("CITY_DISTANCE_METRIC", "planar"),

		Scorer:        sharedcfg.EnvOrDefault("SCORER", ScorerFormula),
		Weights:       sharedcfg.EnvOrDefault("FORMULA_WEIGHTS", "canonical"),
		ModelPath:     sharedcfg.EnvOrDefault("MODEL_PATH", "models/daily_risk_classifier.model"),
		ModelMetaPath: os.Getenv("MODEL_META_PATH"),
		DemoMode:      p.bool("FORECAST_DEMO_MODE", false),
		Threshold:     p.float("RISK_THRESHOLD", 0.5),
		MaxMarkers:    p.int("MAX_MARKERS", 500),
		Seed:          uint64(p.int("SAMPLE_SEED", 42)), //nolint:gosec // validated non-negative below

		LakeLat:     p.float("LAKE_LAT", 41.0),
		LakeLon:     p.float("LAKE_LON", -112.5),
		ForecastLat: p.float("FORECAST_LAT", 40.5),
		ForecastLon: p.float("FORECAST_LON", -111.9),

		ForecastURL:      sharedcfg.EnvOrDefault("FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		ForecastTimeout:  p.duration("FORECAST_TIMEOUT", 15*time.Second),
		ForecastSchedule: sharedcfg.EnvOrDefault("FORECAST_SCHEDULE", "0 6 * * *"),

		IncidentsEnabled: p.bool("INCIDENTS_ENABLED", true),
		IncidentURL:      sharedcfg.EnvOrDefault("INCIDENT_URL", "https://inciweb.wildfire.gov/api/v1/fires"),
		IncidentState:    sharedcfg.EnvOrDefault("INCIDENT_STATE", "UT"),
		IncidentMaxAge:   p.duration("INCIDENT_MAX_AGE", 7*24*time.Hour),
		IncidentTimeout:  p.duration("INCIDENT_TIMEOUT", 10*time.Second),

		NWSBaseURL:   sharedcfg.EnvOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSUserAgent: sharedcfg.EnvOrDefault("NWS_USER_AGENT", "wildfire-risk-etl (ops@example.com)"),
		NWSRate:      p.float("NWS_RATE", 5),
		NWSCacheTTL:  p.duration("NWS_CACHE_TTL", 24*time.Hour),
		NWSCachePath: sharedcfg.EnvOrDefault("NWS_CACHE_PATH", "data/nws_cache.json"),
		NWSTimeout:   p.duration("NWS_TIMEOUT", 10*time.Second),

		KafkaEnabled:   p.bool("KAFKA_ENABLED", false),
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "wildfire-risk-payloads"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.ModelMetaPath == "" {
		cfg.ModelMetaPath = cfg.ModelPath + ".features.json"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.GridBounds.Validate(); err != nil {
		return fmt.Errorf("GRID_BOUNDS: %w", err)
	}
	if err := c.IngestBounds.Validate(); err != nil {
		return fmt.Errorf("INGEST_BOUNDS: %w", err)
	}
	if !(c.GridStep > 0) || math.IsInf(c.GridStep, 0) {
		return errors.New("GRID_STEP must be a positive finite number")
	}
	if err := c.GridBounds.CheckAligned(c.GridStep); err != nil {
		return fmt.Errorf("GRID_BOUNDS: %w", err)
	}
	if _, ok := geodesy.MetricByName(c.CityMetric); !ok {
		return fmt.Errorf("invalid CITY_DISTANCE_METRIC %q", c.CityMetric)
	}
	switch c.Scorer {
	case ScorerFormula, ScorerClassifier:
	case ScorerDemo:
		if !c.DemoMode {
			return errors.New("SCORER=demo requires FORECAST_DEMO_MODE=true")
		}
	default:
		return fmt.Errorf("invalid SCORER %q", c.Scorer)
	}
	if _, err := risk.WeightsByName(c.Weights); err != nil {
		return fmt.Errorf("FORMULA_WEIGHTS: %w", err)
	}
	if !(c.Threshold >= 0 && c.Threshold <= 1) {
		return errors.New("RISK_THRESHOLD must be in [0, 1]")
	}
	if c.MaxMarkers < 1 {
		return errors.New("MAX_MARKERS must be at least 1")
	}
	if int64(c.Seed) < 0 {
		return errors.New("SAMPLE_SEED must not be negative")
	}
	if c.NWSRate <= 0 {
		return errors.New("NWS_RATE must be positive")
	}
	if _, err := cron.ParseStandard(c.ForecastSchedule); err != nil {
		return fmt.Errorf("invalid FORECAST_SCHEDULE: %w", err)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	return nil
}

// parser reads typed env vars and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(key string, cause error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, cause)
	}
}

func (p *parser) float(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if v <= 0 {
		p.fail(key, errors.New("must be positive"))
		return def
	}
	return v
}

// bounds parses "lat_min,lat_max,lon_min,lon_max".
func (p *parser) bounds(key string, def domain.BoundingBox) domain.BoundingBox {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		p.fail(key, errors.New("want lat_min,lat_max,lon_min,lon_max"))
		return def
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			p.fail(key, err)
			return def
		}
		v[i] = f
	}
	return domain.BoundingBox{LatMin: v[0], LatMax: v[1], LonMin: v[2], LonMax: v[3]}
}
