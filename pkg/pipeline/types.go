package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/m4bench/pkg/decompose"
)

var (
	// ErrForecaster marks failures raised by the forecaster plugin while
	// fitting or predicting.
	ErrForecaster = errors.New("forecaster failure")

	// ErrDuplicateSeries is returned by Run when two inputs share an ID.
	ErrDuplicateSeries = errors.New("duplicate series id")

	// ErrInvalidInput is returned for inputs with non-positive period,
	// horizon or lags, or with non-finite values.
	ErrInvalidInput = errors.New("invalid series input")
)

// Stage names one step of the per-series state machine.
type Stage string

const (
	StageInput         Stage = "input"
	StageDeseasonalize Stage = "deseasonalize"
	StageDetrend       Stage = "detrend"
	StageWindow        Stage = "window"
	StageFit           Stage = "fit"
	StageForecast      Stage = "forecast"
	StageReconstruct   Stage = "reconstruct"
	StageScore         Stage = "score"
)

// StageError records the series and stage at which processing stopped.
type StageError struct {
	SeriesID string
	Stage    Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("series %s: %s: %v", e.SeriesID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Input is one series to benchmark.
type Input struct {
	ID      string
	Values  []float64
	Period  int // observations per seasonal cycle (ppy)
	Horizon int // forecast horizon (fh)
	Lags    int // input window width (in_num)
}

// Config controls a benchmark run.
type Config struct {
	// Seed is passed to the forecaster factory for every series.
	Seed int64

	// FailFast aborts Run at the first failing series instead of recording
	// the failure and continuing.
	FailFast bool

	// AlignHoldout re-applies trend and seasonality at the positions of the
	// held-out points (n-fh onward) instead of past the end of the series
	// (trend from n+1, season from n).
	AlignHoldout bool

	// Observer, if set, receives stage timings and per-series outcomes.
	Observer Observer
}

// Observer receives progress events from a run. Implementations must not
// retain the slices inside SeriesResult.
type Observer interface {
	ObserveStage(stage Stage, d time.Duration)
	ObserveSeries(result SeriesResult)
	ObserveFailure(err *StageError)
}

// SeriesResult is the outcome of one successfully processed series.
type SeriesResult struct {
	ID          string                `json:"id"`
	Model       string                `json:"model"`
	Seasonality decompose.Seasonality `json:"seasonality"`
	Trend       decompose.Trend       `json:"trend"`
	Forecast    []float64             `json:"forecast"`
	Actual      []float64             `json:"actual"`
	SMAPE       float64               `json:"smape"`
	MASE        float64               `json:"mase"`

	// MASEDegenerate is true when the naive scale was zero or undefined and
	// MASE was reported as 0.
	MASEDegenerate bool          `json:"mase_degenerate,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// Failure is a series that could not be processed.
type Failure struct {
	SeriesID string `json:"id"`
	Stage    Stage  `json:"stage"`
	Message  string `json:"error"`
	Err      error  `json:"-"`
}

// Report is the outcome of a run. SMAPE and MASE hold one entry per
// successful series, in input order.
type Report struct {
	Results   []SeriesResult       `json:"results"`
	Forecasts map[string][]float64 `json:"forecasts"`
	SMAPE     []float64            `json:"smape"`
	MASE      []float64            `json:"mase"`
	MeanSMAPE float64              `json:"mean_smape"`
	MeanMASE  float64              `json:"mean_mase"`
	Failures  []Failure            `json:"failures,omitempty"`
}
