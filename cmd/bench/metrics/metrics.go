// Package metrics provides Prometheus instrumentation for benchmark runs.
//
// Metrics exposed:
//   - m4bench_stage_duration_seconds: per-stage processing time (label stage)
//   - m4bench_series_total: processed series (labels model, outcome)
//   - m4bench_series_failures_total: failed series (label stage)
//   - m4bench_series_smape / m4bench_series_mase: per-series error histograms
//   - m4bench_mean_smape / m4bench_mean_mase: means of the last run
//   - m4bench_run_duration_seconds, m4bench_last_run_timestamp_seconds
//   - m4bench_errors_total: errors by component and reason
//
// Metrics live in their own registry, served by Handler and optionally
// pushed to a Pushgateway after a run.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/HatiCode/m4bench/pkg/pipeline"
)

const jobName = "m4bench"

// Metrics holds the benchmark metrics. It implements pipeline.Observer.
type Metrics struct {
	registry *prometheus.Registry

	StageSeconds   *prometheus.HistogramVec
	SeriesTotal    *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
	SeriesSMAPE    prometheus.Histogram
	SeriesMASE     prometheus.Histogram
	MeanSMAPE      prometheus.Gauge
	MeanMASE       prometheus.Gauge
	RunSeconds     prometheus.Gauge
	LastRunSeconds prometheus.Gauge
	ErrorsTotal    *prometheus.CounterVec
}

// New creates the metrics in a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "m4bench_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage per series",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"stage"}),

		SeriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "m4bench_series_total",
			Help: "Series processed, by model and outcome",
		}, []string{"model", "outcome"}),

		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "m4bench_series_failures_total",
			Help: "Failed series by the stage that failed",
		}, []string{"stage"}),

		SeriesSMAPE: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "m4bench_series_smape",
			Help:    "Per-series symmetric MAPE (fraction, 0 to 2)",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 20),
		}),

		SeriesMASE: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "m4bench_series_mase",
			Help:    "Per-series mean absolute scaled error",
			Buckets: []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10},
		}),

		MeanSMAPE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "m4bench_mean_smape",
			Help: "Mean sMAPE of the last run",
		}),

		MeanMASE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "m4bench_mean_mase",
			Help: "Mean MASE of the last run",
		}),

		RunSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "m4bench_run_duration_seconds",
			Help: "Wall time of the last run",
		}),

		LastRunSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "m4bench_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "m4bench_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// ObserveStage records a stage duration.
func (m *Metrics) ObserveStage(stage pipeline.Stage, d time.Duration) {
	m.StageSeconds.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// ObserveSeries records a successful series.
func (m *Metrics) ObserveSeries(result pipeline.SeriesResult) {
	m.SeriesTotal.WithLabelValues(result.Model, "success").Inc()
	m.SeriesSMAPE.Observe(result.SMAPE)
	m.SeriesMASE.Observe(result.MASE)
}

// ObserveFailure records a failed series.
func (m *Metrics) ObserveFailure(err *pipeline.StageError) {
	m.SeriesTotal.WithLabelValues("", "failure").Inc()
	m.FailuresTotal.WithLabelValues(string(err.Stage)).Inc()
}

// RecordRun sets the run-level gauges from report.
func (m *Metrics) RecordRun(report *pipeline.Report, d time.Duration) {
	m.MeanSMAPE.Set(report.MeanSMAPE)
	m.MeanMASE.Set(report.MeanMASE)
	m.RunSeconds.Set(d.Seconds())
	m.LastRunSeconds.SetToCurrentTime()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry as a Gatherer.
func (m *Metrics) Registry() prometheus.Gatherer {
	return m.registry
}

// Push sends the registry to the Pushgateway at url, grouped by run ID.
func (m *Metrics) Push(ctx context.Context, url, runID string) error {
	return push.New(url, jobName).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
}
