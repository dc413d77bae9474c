// Package main implements the benchmark run orchestration.
//
// A run loads the series from a Source, benchmarks them with the pipeline,
// stores one snapshot per successful series and records run metrics:
//
//	load → filter/limit → pipeline.Run → store snapshots → summary
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/m4bench/cmd/bench/metrics"
	"github.com/HatiCode/m4bench/cmd/bench/router"
	"github.com/HatiCode/m4bench/pkg/accuracy"
	"github.com/HatiCode/m4bench/pkg/adapters"
	"github.com/HatiCode/m4bench/pkg/dataset"
	"github.com/HatiCode/m4bench/pkg/pipeline"
	"github.com/HatiCode/m4bench/pkg/storage"
)

// Source yields the series to benchmark.
type Source interface {
	Load(ctx context.Context) ([]dataset.Series, error)
}

// csvSource reads M4 train (and optionally test) files.
type csvSource struct {
	train, test string
}

func (s csvSource) Load(ctx context.Context) ([]dataset.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dataset.LoadM4(s.train, s.test)
}

// adapterSource fetches one live series.
type adapterSource struct {
	adapter adapters.Adapter
	id      string
	window  time.Duration
}

func (s adapterSource) Load(ctx context.Context) ([]dataset.Series, error) {
	fetched, err := s.adapter.Fetch(ctx, s.window)
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", s.adapter.Name(), err)
	}
	series, err := dataset.FromAdapter(s.id, fetched)
	if err != nil {
		return nil, err
	}
	return []dataset.Series{series}, nil
}

// Bench runs benchmarks and keeps the summary of the latest one.
type Bench struct {
	source    Source
	frequency dataset.Frequency
	filter    []string
	limit     int
	model     string
	quantiles []float64
	pipeline  *pipeline.Pipeline
	store     storage.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu   sync.RWMutex
	last *router.Summary
}

// Options selects the series and describes the run.
type Options struct {
	Frequency dataset.Frequency
	Series    []string
	Limit     int
	Model     string
	Quantiles []float64
}

// NewBench creates a Bench. m may be nil.
func NewBench(source Source, p *pipeline.Pipeline, store storage.Store, m *metrics.Metrics, opts Options, logger *slog.Logger) *Bench {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bench{
		source:    source,
		frequency: opts.Frequency,
		filter:    opts.Series,
		limit:     opts.Limit,
		model:     opts.Model,
		quantiles: opts.Quantiles,
		pipeline:  p,
		store:     store,
		metrics:   m,
		logger:    logger,
	}
}

// Run performs one benchmark. The returned report is non-nil whenever the
// series could be loaded, even if the run was interrupted.
func (b *Bench) Run(ctx context.Context) (string, *pipeline.Report, error) {
	runID := uuid.NewString()
	start := time.Now()
	logger := b.logger.With("run_id", runID)

	series, err := b.source.Load(ctx)
	if err != nil {
		b.recordError("source", "load_failed")
		return runID, nil, fmt.Errorf("load series: %w", err)
	}
	series = dataset.Limit(dataset.Filter(series, b.filter), b.limit)
	logger.Info("series loaded",
		"series", len(series),
		"frequency", b.frequency.Name,
		"period", b.frequency.Period,
		"horizon", b.frequency.Horizon,
		"lags", b.frequency.Lags,
	)

	report, runErr := b.pipeline.Run(ctx, dataset.Inputs(series, b.frequency))
	if report == nil {
		return runID, nil, runErr
	}

	b.storeResults(ctx, runID, report, logger)

	duration := time.Since(start)
	if b.metrics != nil {
		b.metrics.RecordRun(report, duration)
	}

	summary := router.Summary{
		RunID:      runID,
		Model:      b.model,
		Frequency:  b.frequency.Name,
		StartedAt:  start.UTC(),
		DurationMS: duration.Milliseconds(),
		Series:     len(series),
		Succeeded:  len(report.Results),
		Failed:     len(report.Failures),
		MeanSMAPE:  report.MeanSMAPE,
		MeanMASE:   report.MeanMASE,
		Failures:   report.Failures,

		SMAPEQuantiles: accuracy.Distribution(report.SMAPE, b.quantiles),
		MASEQuantiles:  accuracy.Distribution(report.MASE, b.quantiles),
	}
	b.mu.Lock()
	b.last = &summary
	b.mu.Unlock()

	logger.Info("FINAL RESULTS",
		"model", b.model,
		"smape", report.MeanSMAPE*100,
		"mase", report.MeanMASE,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	if runErr != nil {
		b.recordError("pipeline", "run_aborted")
	}
	return runID, report, runErr
}

func (b *Bench) storeResults(ctx context.Context, runID string, report *pipeline.Report, logger *slog.Logger) {
	if b.store == nil {
		return
	}
	// Snapshots are written even when ctx was cancelled mid-run.
	ctx = context.WithoutCancel(ctx)
	for _, result := range report.Results {
		if err := b.store.Put(ctx, storage.NewSnapshot(runID, result)); err != nil {
			b.recordError("store", "put_failed")
			logger.Error("failed to store result", "series", result.ID, "error", err)
		}
	}
}

// Summary returns the summary of the latest completed run.
func (b *Bench) Summary() (router.Summary, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return router.Summary{}, false
	}
	return *b.last, true
}

func (b *Bench) recordError(component, reason string) {
	if b.metrics != nil {
		b.metrics.RecordError(component, reason)
	}
}

// reportFile is the JSON document written to OUTPUT.
type reportFile struct {
	RunID          string             `json:"run_id"`
	Model          string             `json:"model"`
	Frequency      dataset.Frequency  `json:"frequency"`
	SMAPEQuantiles map[string]float64 `json:"smape_quantiles,omitempty"`
	MASEQuantiles  map[string]float64 `json:"mase_quantiles,omitempty"`
	*pipeline.Report
}

// WriteReport encodes report as indented JSON.
func (b *Bench) WriteReport(w io.Writer, runID string, report *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reportFile{
		RunID:     runID,
		Model:     b.model,
		Frequency: b.frequency,

		SMAPEQuantiles: accuracy.Distribution(report.SMAPE, b.quantiles),
		MASEQuantiles:  accuracy.Distribution(report.MASE, b.quantiles),
		Report:         report,
	})
}
