package decompose

import (
	"gonum.org/v1/gonum/stat"
)

// Trend is a straight line a*i + b over the observation index i.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// FitTrend fits a least-squares line to values over the positions 0..n-1.
// A single observation gives a flat line through it; no observations give the
// zero line.
func FitTrend(values []float64) Trend {
	switch len(values) {
	case 0:
		return Trend{}
	case 1:
		return Trend{Intercept: values[0]}
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(xs, values, nil, false)
	return Trend{Slope: slope, Intercept: intercept}
}

// At returns the trend value at position i.
func (t Trend) At(i int) float64 {
	return t.Slope*float64(i) + t.Intercept
}

// Remove returns a copy of values with the trend subtracted.
func (t Trend) Remove(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v - t.At(i)
	}
	return out
}

// Apply adds the trend of positions origin, origin+1, ... to values in place.
func (t Trend) Apply(values []float64, origin int) {
	for i := range values {
		values[i] += t.At(origin + i)
	}
}
