// Package pipeline runs the benchmark for a batch of series.
//
// Each series goes through the same state machine, strictly one series at a
// time and in input order:
//
//	deseasonalize → detrend → window → fit → forecast → reconstruct → score
//
// Every stage works on its own copy of the data; the caller's slices are never
// modified. A failing series is recorded in Report.Failures and the batch
// continues, unless Config.FailFast is set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/m4bench/pkg/accuracy"
	"github.com/HatiCode/m4bench/pkg/decompose"
	"github.com/HatiCode/m4bench/pkg/forecast"
	"github.com/HatiCode/m4bench/pkg/models"
	"github.com/HatiCode/m4bench/pkg/window"
)

// Pipeline benchmarks one forecaster over a batch of series.
type Pipeline struct {
	factory models.Factory
	cfg     Config
	logger  *slog.Logger
}

// New creates a Pipeline. factory is called once per series.
func New(factory models.Factory, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		factory: factory,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run processes inputs in order and returns the accumulated report.
//
// On context cancellation, or on the first failure when FailFast is set, Run
// returns the partial report together with the error.
func (p *Pipeline) Run(ctx context.Context, inputs []Input) (*Report, error) {
	report := &Report{
		Forecasts: make(map[string][]float64, len(inputs)),
	}

	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.ID]; dup {
			return report, fmt.Errorf("%w: %q", ErrDuplicateSeries, in.ID)
		}
		seen[in.ID] = struct{}{}
	}

	start := time.Now()
	p.logger.Info("starting benchmark", "series", len(inputs), "seed", p.cfg.Seed)

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			p.finish(report)
			return report, err
		}

		result, err := p.Process(ctx, in)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				p.finish(report)
				return report, ctxErr
			}

			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				stageErr = &StageError{SeriesID: in.ID, Err: err}
			}
			if p.cfg.Observer != nil {
				p.cfg.Observer.ObserveFailure(stageErr)
			}
			if p.cfg.FailFast {
				p.finish(report)
				return report, err
			}

			p.logger.Warn("series failed",
				"series", in.ID,
				"stage", stageErr.Stage,
				"error", stageErr.Err,
			)
			report.Failures = append(report.Failures, Failure{
				SeriesID: in.ID,
				Stage:    stageErr.Stage,
				Message:  stageErr.Err.Error(),
				Err:      stageErr,
			})
			continue
		}

		report.Results = append(report.Results, result)
		report.Forecasts[in.ID] = result.Forecast
		report.SMAPE = append(report.SMAPE, result.SMAPE)
		report.MASE = append(report.MASE, result.MASE)

		if p.cfg.Observer != nil {
			p.cfg.Observer.ObserveSeries(result)
		}
		p.logger.Debug("series complete",
			"series", in.ID,
			"index", i+1,
			"seasonal", result.Seasonality.Seasonal,
			"smape", result.SMAPE,
			"mase", result.MASE,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}

	p.finish(report)
	p.logger.Info("benchmark complete",
		"model", p.modelName(report),
		"series", len(inputs),
		"succeeded", len(report.Results),
		"failed", len(report.Failures),
		"mean_smape", report.MeanSMAPE,
		"mean_mase", report.MeanMASE,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return report, nil
}

// finish fills the report means. With no successful series both are 0.
func (p *Pipeline) finish(report *Report) {
	report.MeanSMAPE, report.MeanMASE = 0, 0
	if len(report.SMAPE) > 0 {
		report.MeanSMAPE = stat.Mean(report.SMAPE, nil)
		report.MeanMASE = stat.Mean(report.MASE, nil)
	}
}

func (p *Pipeline) modelName(report *Report) string {
	if len(report.Results) == 0 {
		return ""
	}
	return report.Results[0].Model
}

// Process runs the full state machine for a single series.
// Errors are returned as *StageError.
func (p *Pipeline) Process(ctx context.Context, in Input) (SeriesResult, error) {
	start := time.Now()
	fail := func(stage Stage, err error) (SeriesResult, error) {
		return SeriesResult{}, &StageError{SeriesID: in.ID, Stage: stage, Err: err}
	}

	if err := validate(in); err != nil {
		return fail(StageInput, err)
	}

	series := append([]float64(nil), in.Values...)
	n := len(series)

	stageStart := time.Now()
	season := decompose.Deseasonalize(series, in.Period)
	adjusted := season.Remove(series)
	p.observe(StageDeseasonalize, stageStart)

	stageStart = time.Now()
	trend := decompose.FitTrend(adjusted)
	residual := trend.Remove(adjusted)
	p.observe(StageDetrend, stageStart)

	stageStart = time.Now()
	windows, err := window.Split(residual, in.Lags, in.Horizon)
	if err != nil {
		return fail(StageWindow, err)
	}
	p.observe(StageWindow, stageStart)

	stageStart = time.Now()
	model, err := p.factory(p.cfg.Seed)
	if err != nil {
		return fail(StageFit, fmt.Errorf("%w: create: %w", ErrForecaster, err))
	}
	if closer, ok := model.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				p.logger.Warn("failed to release forecaster", "series", in.ID, "error", err)
			}
		}()
	}
	if err := model.Fit(ctx, windows.XTrain, windows.YTrain); err != nil {
		return fail(StageFit, fmt.Errorf("%w: %w", ErrForecaster, err))
	}
	p.observe(StageFit, stageStart)

	stageStart = time.Now()
	predicted, err := forecast.Recursive(ctx, model, windows.Seed(), in.Horizon)
	if err != nil {
		return fail(StageForecast, fmt.Errorf("%w: %w", ErrForecaster, err))
	}
	p.observe(StageForecast, stageStart)

	stageStart = time.Now()
	trendOrigin, seasonOrigin := n+1, n
	if p.cfg.AlignHoldout {
		trendOrigin, seasonOrigin = n-in.Horizon, n-in.Horizon
	}
	forecast.Retrend(predicted, trend, trendOrigin)
	forecast.Reseasonalize(predicted, season, seasonOrigin)
	forecast.Clip(predicted, forecast.Ceiling(series))
	for i, v := range predicted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail(StageReconstruct, fmt.Errorf("forecast point %d is not finite", i))
		}
	}
	p.observe(StageReconstruct, stageStart)

	stageStart = time.Now()
	actual, err := window.Targets(series, in.Lags, in.Horizon)
	if err != nil {
		return fail(StageScore, err)
	}
	smape, err := accuracy.SMAPE(actual, predicted)
	if err != nil {
		return fail(StageScore, err)
	}
	insample := series[:n-in.Horizon]
	mase, err := accuracy.MASE(insample, actual, predicted, in.Period)
	if err != nil {
		return fail(StageScore, err)
	}
	degenerate := accuracy.Degenerate(insample, in.Period)
	if degenerate {
		p.logger.Warn("naive scale is zero, reporting MASE as 0", "series", in.ID, "period", in.Period)
	}
	p.observe(StageScore, stageStart)

	return SeriesResult{
		ID:             in.ID,
		Model:          model.Name(),
		Seasonality:    season,
		Trend:          trend,
		Forecast:       predicted,
		Actual:         actual,
		SMAPE:          smape,
		MASE:           mase,
		MASEDegenerate: degenerate,
		Duration:       time.Since(start),
	}, nil
}

func (p *Pipeline) observe(stage Stage, start time.Time) {
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveStage(stage, time.Since(start))
	}
}

func validate(in Input) error {
	if in.Period < 1 || in.Horizon < 1 || in.Lags < 1 {
		return fmt.Errorf("%w: period=%d horizon=%d lags=%d", ErrInvalidInput, in.Period, in.Horizon, in.Lags)
	}
	for i, v := range in.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrInvalidInput, i)
		}
	}
	return nil
}
