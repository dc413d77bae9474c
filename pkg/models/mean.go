package models

import (
	"context"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// WindowMean predicts the arithmetic mean of its input window. It has no
// parameters; Fit only records the window width.
type WindowMean struct {
	width int
}

// NewWindowMean creates a window mean forecaster.
func NewWindowMean() *WindowMean {
	return &WindowMean{}
}

// Name returns the model identifier.
func (m *WindowMean) Name() string {
	return "mean"
}

// Fit records the window width.
func (m *WindowMean) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, cols, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	m.width = cols
	return nil
}

// Predict returns the mean of window.
func (m *WindowMean) Predict(ctx context.Context, window []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.width == 0 {
		return 0, ErrNotFitted
	}
	if err := checkWindow(window, m.width); err != nil {
		return 0, err
	}
	return stat.Mean(window, nil), nil
}
