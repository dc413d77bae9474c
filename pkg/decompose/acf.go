package decompose

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Autocorrelation computes the lag-k autocorrelation of values:
//
//	sum_{i=k}^{n-1} (x_i - mean)(x_{i-k} - mean) / sum_{i=0}^{n-1} (x_i - mean)^2
//
// The result is not clamped. A constant series has no variance and yields 0,
// as does a lag at or beyond the series length.
func Autocorrelation(values []float64, k int) float64 {
	n := len(values)
	if n == 0 || k < 0 {
		return 0
	}

	mean := stat.Mean(values, nil)

	var num float64
	for i := k; i < n; i++ {
		num += (values[i] - mean) * (values[i-k] - mean)
	}

	var den float64
	for _, v := range values {
		den += (v - mean) * (v - mean)
	}

	// Deviations at the level of rounding error count as a constant series.
	if den == 0 || den <= float64(n)*constantTolerance*mean*mean {
		return 0
	}

	return num / den
}

// constantTolerance bounds the relative variance treated as zero.
const constantTolerance = 1e-28

// seasonalityZ is the one-sided 90% critical value used by IsSeasonal.
const seasonalityZ = 1.645

// IsSeasonal reports whether values show periodic structure at period ppy.
//
// The autocorrelation at lag ppy is compared against
//
//	1.645 * sqrt((1 + 2s) / n),  s = acf(1) + sum_{i=2}^{ppy-1} acf(i)^2
//
// Lag ppy itself is not part of s. A negative radicand produces NaN and the
// series is reported as not seasonal.
func IsSeasonal(values []float64, ppy int) bool {
	if ppy <= 1 || len(values) == 0 {
		return false
	}

	s := Autocorrelation(values, 1)
	for i := 2; i < ppy; i++ {
		r := Autocorrelation(values, i)
		s += r * r
	}

	limit := seasonalityZ * math.Sqrt((1+2*s)/float64(len(values)))

	return math.Abs(Autocorrelation(values, ppy)) > limit
}
