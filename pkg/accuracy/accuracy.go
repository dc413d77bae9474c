// Package accuracy scores point forecasts against held-out observations.
package accuracy

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when actual and forecast differ in length or
// are empty.
var ErrLengthMismatch = errors.New("actual and forecast must be non-empty and of equal length")

// SMAPE returns the symmetric mean absolute percentage error as a fraction in
// [0, 2]:
//
//	mean( 2|a-f| / (|a|+|f|) )
//
// A position where both actual and forecast are 0 is a perfect forecast and
// contributes 0.
func SMAPE(actual, forecast []float64) (float64, error) {
	if err := checkLengths(actual, forecast); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := range actual {
		denom := math.Abs(actual[i]) + math.Abs(forecast[i])
		if denom == 0 {
			continue
		}
		sum += 2 * math.Abs(actual[i]-forecast[i]) / denom
	}
	return sum / float64(len(actual)), nil
}

// NaiveScale returns the in-sample mean absolute error of the seasonal naive
// forecast, mean |x_i - x_{i-freq}| for i >= freq. ok is false when the
// series has no such pairs.
func NaiveScale(insample []float64, freq int) (scale float64, ok bool) {
	if freq < 1 {
		freq = 1
	}
	if len(insample) <= freq {
		return 0, false
	}

	sum := 0.0
	for i := freq; i < len(insample); i++ {
		sum += math.Abs(insample[i] - insample[i-freq])
	}
	return sum / float64(len(insample)-freq), true
}

// MASE returns the mean absolute scaled error of forecast against actual,
// scaled by NaiveScale(insample, freq). When the scale is zero or undefined
// the error is reported as 0.
func MASE(insample, actual, forecast []float64, freq int) (float64, error) {
	if err := checkLengths(actual, forecast); err != nil {
		return 0, err
	}

	scale, ok := NaiveScale(insample, freq)
	if !ok || scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 0, nil
	}

	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - forecast[i])
	}
	return sum / float64(len(actual)) / scale, nil
}

// Degenerate reports whether MASE would fall back to 0 for insample and freq.
func Degenerate(insample []float64, freq int) bool {
	scale, ok := NaiveScale(insample, freq)
	return !ok || scale == 0
}

func checkLengths(actual, forecast []float64) error {
	if len(actual) == 0 || len(actual) != len(forecast) {
		return fmt.Errorf("%w: %d actual, %d forecast", ErrLengthMismatch, len(actual), len(forecast))
	}
	return nil
}
