package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/m4bench/pkg/models"
	"github.com/HatiCode/m4bench/pkg/window"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func meanFactory(seed int64) (models.Forecaster, error) {
	return models.NewWindowMean(), nil
}

func linearSeries(n int, slope, intercept float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = intercept + slope*float64(i)
	}
	return values
}

func seasonalSeries(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + 20*math.Sin(2*math.Pi*float64(i)/12)
	}
	return values
}

// failing is a forecaster whose Fit or Predict returns err.
type failing struct {
	fitErr     error
	predictErr error
	closed     *int
}

func (f *failing) Name() string { return "failing" }

func (f *failing) Fit(ctx context.Context, x mat.Matrix, y []float64) error { return f.fitErr }

func (f *failing) Predict(ctx context.Context, window []float64) (float64, error) {
	return 0, f.predictErr
}

func (f *failing) Close() error {
	if f.closed != nil {
		*f.closed++
	}
	return nil
}

type recorder struct {
	stages   map[Stage]int
	series   []string
	failures []*StageError
}

func newRecorder() *recorder {
	return &recorder{stages: make(map[Stage]int)}
}

func (r *recorder) ObserveStage(stage Stage, d time.Duration) { r.stages[stage]++ }
func (r *recorder) ObserveSeries(result SeriesResult) { r.series = append(r.series, result.ID) }
func (r *recorder) ObserveFailure(err *StageError) { r.failures = append(r.failures, err) }

func TestProcess_LinearEndToEnd(t *testing.T) {
	p := New(meanFactory, Config{Seed: 42}, discardLogger())
	values := linearSeries(30, 10, 100)

	result, err := p.Process(context.Background(), Input{
		ID: "T1", Values: values, Period: 12, Horizon: 6, Lags: 3,
	})
	require.NoError(t, err)

	assert.False(t, result.Seasonality.Seasonal)
	for i, idx := range result.Seasonality.Indices {
		assert.Equal(t, 100.0, idx, "index %d", i)
	}
	assert.InDelta(t, 10, result.Trend.Slope, 1e-9)
	assert.InDelta(t, 100, result.Trend.Intercept, 1e-9)

	require.Len(t, result.Forecast, 6)
	for i := 1; i < len(result.Forecast); i++ {
		assert.Greater(t, result.Forecast[i], result.Forecast[i-1])
		assert.InDelta(t, 10, result.Forecast[i]-result.Forecast[i-1], 1e-6)
	}

	assert.Equal(t, []float64{340, 350, 360, 370, 380, 390}, result.Actual)
	// The trend is continued from position n+1, so the forecast runs a fixed
	// distance ahead of the held-out points.
	assert.InDelta(t, 410, result.Forecast[0], 1e-6)
	assert.Less(t, result.SMAPE, 0.2)
	assert.GreaterOrEqual(t, result.MASE, 0.0)
	assert.Equal(t, "mean", result.Model)

	assert.Equal(t, linearSeries(30, 10, 100), values, "input must not be modified")
}

func TestProcess_AlignHoldout(t *testing.T) {
	p := New(meanFactory, Config{Seed: 42, AlignHoldout: true}, discardLogger())

	result, err := p.Process(context.Background(), Input{
		ID: "T1", Values: linearSeries(30, 10, 100), Period: 12, Horizon: 6, Lags: 3,
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{340, 350, 360, 370, 380, 390}, result.Forecast, 1e-6)
	assert.InDelta(t, 0, result.SMAPE, 1e-9)
	assert.InDelta(t, 0, result.MASE, 1e-9)
}

func TestProcess_LinearSeriesNotSeasonal(t *testing.T) {
	p := New(meanFactory, Config{}, discardLogger())

	result, err := p.Process(context.Background(), Input{
		ID: "L", Values: linearSeries(48, 5, 1), Period: 12, Horizon: 6, Lags: 3,
	})
	require.NoError(t, err)

	assert.False(t, result.Seasonality.Seasonal)
	assert.Len(t, result.Seasonality.Indices, 12)
	for _, idx := range result.Seasonality.Indices {
		assert.Equal(t, 100.0, idx)
	}
}

func TestProcess_SeasonalSeries(t *testing.T) {
	factory := func(seed int64) (models.Forecaster, error) {
		return models.NewLinearModel(0)
	}
	p := New(factory, Config{AlignHoldout: true}, discardLogger())

	result, err := p.Process(context.Background(), Input{
		ID: "S", Values: seasonalSeries(48), Period: 12, Horizon: 6, Lags: 3,
	})
	require.NoError(t, err)

	assert.True(t, result.Seasonality.Seasonal)
	sum := 0.0
	for _, idx := range result.Seasonality.Indices {
		sum += idx
	}
	assert.InDelta(t, 100, sum/12, 1e-9)
	for _, v := range result.Forecast {
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.LessOrEqual(t, result.SMAPE, 2.0)
}

func TestProcess_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		factory   models.Factory
		input     Input
		wantStage Stage
		wantErr   error
	}{
		{
			name:      "degenerate series",
			factory:   meanFactory,
			input:     Input{ID: "D", Values: linearSeries(8, 1, 1), Period: 1, Horizon: 6, Lags: 3},
			wantStage: StageWindow,
			wantErr:   window.ErrDegenerateSeries,
		},
		{
			name:      "invalid horizon",
			factory:   meanFactory,
			input:     Input{ID: "H", Values: linearSeries(20, 1, 1), Period: 1, Horizon: 0, Lags: 3},
			wantStage: StageInput,
			wantErr:   ErrInvalidInput,
		},
		{
			name:      "non finite value",
			factory:   meanFactory,
			input:     Input{ID: "N", Values: []float64{1, 2, math.NaN(), 4, 5, 6, 7, 8}, Period: 1, Horizon: 2, Lags: 2},
			wantStage: StageInput,
			wantErr:   ErrInvalidInput,
		},
		{
			name: "factory error",
			factory: func(seed int64) (models.Forecaster, error) {
				return nil, boom
			},
			input:     Input{ID: "F", Values: linearSeries(20, 1, 1), Period: 1, Horizon: 2, Lags: 3},
			wantStage: StageFit,
			wantErr:   ErrForecaster,
		},
		{
			name: "fit error",
			factory: func(seed int64) (models.Forecaster, error) {
				return &failing{fitErr: boom}, nil
			},
			input:     Input{ID: "F", Values: linearSeries(20, 1, 1), Period: 1, Horizon: 2, Lags: 3},
			wantStage: StageFit,
			wantErr:   boom,
		},
		{
			name: "predict error",
			factory: func(seed int64) (models.Forecaster, error) {
				return &failing{predictErr: boom}, nil
			},
			input:     Input{ID: "P", Values: linearSeries(20, 1, 1), Period: 1, Horizon: 2, Lags: 3},
			wantStage: StageForecast,
			wantErr:   ErrForecaster,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.factory, Config{}, discardLogger())
			_, err := p.Process(context.Background(), tt.input)
			require.Error(t, err)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.wantStage, stageErr.Stage)
			assert.Equal(t, tt.input.ID, stageErr.SeriesID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProcess_ClosesForecaster(t *testing.T) {
	closed := 0
	factory := func(seed int64) (models.Forecaster, error) {
		return &failing{predictErr: errors.New("boom"), closed: &closed}, nil
	}
	p := New(factory, Config{}, discardLogger())

	_, err := p.Process(context.Background(), Input{ID: "C", Values: linearSeries(20, 1, 1), Period: 1, Horizon: 2, Lags: 3})
	require.Error(t, err)
	assert.Equal(t, 1, closed)
}

func TestRun_IsolatesFailures(t *testing.T) {
	rec := newRecorder()
	p := New(meanFactory, Config{Observer: rec}, discardLogger())

	report, err := p.Run(context.Background(), []Input{
		{ID: "A", Values: linearSeries(30, 10, 100), Period: 12, Horizon: 6, Lags: 3},
		{ID: "short", Values: []float64{1, 2, 3}, Period: 1, Horizon: 6, Lags: 3},
		{ID: "B", Values: linearSeries(40, 2, 50), Period: 4, Horizon: 8, Lags: 3},
	})
	require.NoError(t, err)

	assert.Len(t, report.Results, 2)
	assert.Len(t, report.SMAPE, 2)
	assert.Len(t, report.MASE, 2)
	assert.Equal(t, "A", report.Results[0].ID)
	assert.Equal(t, "B", report.Results[1].ID)
	assert.Contains(t, report.Forecasts, "A")
	assert.Len(t, report.Forecasts["B"], 8)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "short", report.Failures[0].SeriesID)
	assert.Equal(t, StageWindow, report.Failures[0].Stage)
	assert.ErrorIs(t, report.Failures[0].Err, window.ErrDegenerateSeries)

	assert.InDelta(t, (report.SMAPE[0]+report.SMAPE[1])/2, report.MeanSMAPE, 1e-12)
	assert.InDelta(t, (report.MASE[0]+report.MASE[1])/2, report.MeanMASE, 1e-12)

	assert.Equal(t, []string{"A", "B"}, rec.series)
	assert.Len(t, rec.failures, 1)
	assert.Equal(t, 2, rec.stages[StageScore])
	assert.Equal(t, 3, rec.stages[StageDeseasonalize])
}

func TestRun_FailFast(t *testing.T) {
	p := New(meanFactory, Config{FailFast: true}, discardLogger())

	report, err := p.Run(context.Background(), []Input{
		{ID: "short", Values: []float64{1, 2, 3}, Period: 1, Horizon: 6, Lags: 3},
		{ID: "A", Values: linearSeries(30, 10, 100), Period: 12, Horizon: 6, Lags: 3},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, window.ErrDegenerateSeries)
	assert.Empty(t, report.Results)
}

func TestRun_AllFailedMeansAreZero(t *testing.T) {
	p := New(meanFactory, Config{}, discardLogger())

	report, err := p.Run(context.Background(), []Input{
		{ID: "x", Values: []float64{1, 2}, Period: 1, Horizon: 1, Lags: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.MeanSMAPE)
	assert.Equal(t, 0.0, report.MeanMASE)
	assert.Len(t, report.Failures, 1)
}

func TestRun_DuplicateIDs(t *testing.T) {
	p := New(meanFactory, Config{}, discardLogger())

	_, err := p.Run(context.Background(), []Input{
		{ID: "A", Values: linearSeries(30, 1, 1), Period: 1, Horizon: 2, Lags: 3},
		{ID: "A", Values: linearSeries(30, 1, 1), Period: 1, Horizon: 2, Lags: 3},
	})
	assert.ErrorIs(t, err, ErrDuplicateSeries)
}

func TestRun_Cancelled(t *testing.T) {
	p := New(meanFactory, Config{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, []Input{
		{ID: "A", Values: linearSeries(30, 1, 1), Period: 1, Horizon: 2, Lags: 3},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Results)
}

func TestRun_Deterministic(t *testing.T) {
	factory := func(seed int64) (models.Forecaster, error) {
		return models.NewMLPModel(models.DefaultMLPConfig(), seed)
	}
	inputs := []Input{
		{ID: "S", Values: seasonalSeries(48), Period: 12, Horizon: 6, Lags: 3},
	}

	first, err := New(factory, Config{Seed: 7}, discardLogger()).Run(context.Background(), inputs)
	require.NoError(t, err)
	second, err := New(factory, Config{Seed: 7}, discardLogger()).Run(context.Background(), inputs)
	require.NoError(t, err)

	assert.Equal(t, first.Forecasts, second.Forecasts)
	assert.Equal(t, first.SMAPE, second.SMAPE)
}
