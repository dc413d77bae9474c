// Package models provides forecaster implementations that plug into the
// benchmark pipeline.
//
// A Forecaster learns a one-step-ahead mapping from a window of lagged values
// to the next value. The pipeline builds a fresh Forecaster for every series
// through a Factory, fits it once on the training windows, and then drives it
// recursively to cover the forecast horizon.
//
// Available models:
//   - WindowMean — predicts the mean of the input window
//   - LinearModel — least squares (optionally ridge) regression on the window
//   - MLPModel — single hidden layer network trained with Adam
//   - RNNModel — simple recurrent network trained with RMSprop
//   - BYOMModel — delegates fit/predict to an external HTTP service
package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotFitted is returned by Predict when Fit has not completed.
var ErrNotFitted = errors.New("model not fitted, call Fit() first")

// Forecaster is a one-step-ahead regression model over fixed-width windows.
//
// Fit receives one training window per row of x and the matching targets in
// y. Predict receives a single window with as many values as x has columns.
// Implementations must be deterministic for a given construction seed.
type Forecaster interface {
	// Name returns a short identifier such as "mlp" or "linear".
	Name() string

	// Fit trains the model. It may be called once per Forecaster.
	Fit(ctx context.Context, x mat.Matrix, y []float64) error

	// Predict returns the next value following window.
	Predict(ctx context.Context, window []float64) (float64, error)
}

// Factory creates a new, unfitted Forecaster for one series. The seed makes
// any random initialization reproducible.
type Factory func(seed int64) (Forecaster, error)

// checkTraining validates the shapes passed to Fit and returns the number of
// rows and columns.
func checkTraining(x mat.Matrix, y []float64) (int, int, error) {
	if x == nil {
		return 0, 0, errors.New("training matrix is nil")
	}
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.New("training matrix is empty")
	}
	if rows != len(y) {
		return 0, 0, fmt.Errorf("training rows (%d) != targets (%d)", rows, len(y))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, fmt.Errorf("target %d is not finite", i)
		}
	}
	return rows, cols, nil
}

// checkWindow validates a prediction window against the fitted width.
func checkWindow(window []float64, width int) error {
	if len(window) != width {
		return fmt.Errorf("window has %d values, model expects %d", len(window), width)
	}
	return nil
}
