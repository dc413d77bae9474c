// Package forecast drives a one-step forecaster across a horizon and maps the
// result back to the scale of the original series.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/HatiCode/m4bench/pkg/models"
)

// ErrNonFinite is returned when a forecaster produces NaN or ±Inf.
var ErrNonFinite = errors.New("forecaster returned a non-finite value")

// Recursive produces fh values by feeding each prediction back as the newest
// lag: predict, drop the oldest value of the window, append the prediction,
// repeat. The seed window is not modified.
func Recursive(ctx context.Context, f models.Forecaster, seed []float64, fh int) ([]float64, error) {
	if len(seed) == 0 {
		return nil, errors.New("seed window is empty")
	}
	if fh < 1 {
		return nil, fmt.Errorf("horizon must be >= 1, got %d", fh)
	}

	window := append([]float64(nil), seed...)
	out := make([]float64, 0, fh)

	for step := 0; step < fh; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := f.Predict(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step+1, err)
		}
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return nil, fmt.Errorf("step %d: %w", step+1, ErrNonFinite)
		}
		out = append(out, next)

		copy(window, window[1:])
		window[len(window)-1] = next
	}

	return out, nil
}
