package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wildfire_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk pipeline.
type Metrics struct {
	// Ingestion.
	DetectionsIngested prometheus.Counter
	DetectionsDropped  *prometheus.CounterVec // labels: reason={out_of_bounds,low_confidence,malformed}

	// Derived tables.
	LabelRows        prometheus.Gauge
	LabelPositives   prometheus.Gauge
	StageDuration    *prometheus.HistogramVec // labels: stage={labels,proximity,weather,forecast}
	ProximityCells   prometheus.Gauge
	PipelineRunning  prometheus.Gauge
	LastRunTimestamp *prometheus.GaugeVec   // labels: stage
	StageFailures    *prometheus.CounterVec // labels: stage, source

	// Forecast.
	CellsScored   *prometheus.CounterVec // labels: scorer
	HighRiskCells prometheus.Gauge
	PayloadsSent  *prometheus.CounterVec // labels: sink

	// External lookups.
	WeatherFetches      *prometheus.CounterVec   // labels: source={forecast,nws,archive}, outcome={success,error,missing}
	WeatherCache        *prometheus.CounterVec   // labels: result={hit,miss}
	WeatherAPIDuration  *prometheus.HistogramVec // labels: source
	IncidentFetchErrors prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DetectionsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_ingested_total",
			Help:      "Fire detections accepted into the detection table.",
		}),
		DetectionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_dropped_total",
			Help:      "Raw detection rows dropped during ingestion, by reason.",
		}, []string{"reason"}),
		LabelRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "label_rows",
			Help:      "Rows in the most recent grid × date label table.",
		}),
		LabelPositives: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "label_positives",
			Help:      "Ignition-positive rows in the most recent label table.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ProximityCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proximity_cells",
			Help:      "Cells in the most recent proximity table.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a stage is running, 0 otherwise.",
		}),
		LastRunTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of a stage.",
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stage runs that failed, by the source that was unavailable.",
		}, []string{"stage", "source"}),
		CellsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_scored_total",
			Help:      "Grid cells scored, by scorer.",
		}, []string{"scorer"}),
		HighRiskCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "high_risk_cells",
			Help:      "Cells above the risk threshold in the most recent forecast.",
		}),
		PayloadsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_sent_total",
			Help:      "Render payloads delivered, by sink.",
		}, []string{"sink"}),
		WeatherFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_fetches_total",
			Help:      "Weather lookups by source and outcome.",
		}, []string{"source", "outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Observation cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"source"}),
		IncidentFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_fetch_errors_total",
			Help:      "Incident feed requests that failed and were skipped.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DetectionsIngested,
		m.DetectionsDropped,
		m.LabelRows,
		m.LabelPositives,
		m.StageDuration,
		m.ProximityCells,
		m.PipelineRunning,
		m.LastRunTimestamp,
		m.StageFailures,
		m.CellsScored,
		m.HighRiskCells,
		m.PayloadsSent,
		m.WeatherFetches,
		m.WeatherCache,
		m.WeatherAPIDuration,
		m.IncidentFetchErrors,
	}
}
