package decompose

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrNoSeasonalIndex is returned by SeasonalIndices when the ratios cannot
// produce a usable index for every phase (too few complete cycles, or a zero
// or negative index after normalization).
var ErrNoSeasonalIndex = errors.New("seasonal index undefined")

// flatIndex is the index value of a phase with no seasonal effect.
const flatIndex = 100.0

// rollingCentered returns the centered rolling mean of x over w points.
//
// Output i averages x[i+1+off-w .. i+off] with off = (w-1)/2, which places an
// even window one point further into the past than into the future. Positions
// whose window leaves the series, or contains NaN, are NaN.
func rollingCentered(x []float64, w int) []float64 {
	n := len(x)
	out := make([]float64, n)
	off := (w - 1) / 2

	for i := range out {
		end := i + 1 + off
		start := end - w
		if start < 0 || end > n {
			out[i] = math.NaN()
			continue
		}
		out[i] = floats.Sum(x[start:end]) / float64(w)
	}

	return out
}

// MovingAverage returns the centered moving average of values with the given
// window, NaN where it is undefined.
//
// When the series has an even number of points the window average is smoothed
// again over two points and shifted back by one, giving the usual 2xw centered
// average for even windows. Series with an odd number of points get the single
// pass. The choice depends on the series length, not on the window.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}

	ma := rollingCentered(values, window)
	if len(values)%2 != 0 {
		return ma
	}

	ma2 := rollingCentered(ma, 2)
	n := len(ma2)
	out := make([]float64, n)
	for i := range out {
		out[i] = ma2[(i+1)%n]
	}

	return out
}

// SeasonalIndices computes one multiplicative index per phase of a ppy-long
// cycle. Each observation is divided by its centered moving average (x100),
// the ratios are averaged per phase i mod ppy, and the result is rescaled so
// the indices average exactly 100.
func SeasonalIndices(values []float64, ppy int) ([]float64, error) {
	if ppy < 1 {
		return nil, ErrNoSeasonalIndex
	}

	ma := MovingAverage(values, ppy)

	sums := make([]float64, ppy)
	counts := make([]int, ppy)
	for i, v := range values {
		ratio := v * 100 / ma[i]
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			continue
		}
		sums[i%ppy] += ratio
		counts[i%ppy]++
	}

	indices := make([]float64, ppy)
	for j := range indices {
		if counts[j] == 0 {
			return nil, ErrNoSeasonalIndex
		}
		indices[j] = sums[j] / float64(counts[j])
	}

	norm := floats.Sum(indices) / (float64(ppy) * 100)
	if norm <= 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrNoSeasonalIndex
	}
	for j := range indices {
		indices[j] /= norm
	}

	for _, v := range indices {
		if v <= 0 || math.IsInf(v, 0) {
			return nil, ErrNoSeasonalIndex
		}
	}

	return indices, nil
}

// Seasonality holds the seasonal index array of one series.
type Seasonality struct {
	Period  int       `json:"period"`
	Indices []float64 `json:"indices"`

	// Seasonal is true when Indices came from decomposition rather than the
	// flat all-100 default.
	Seasonal bool `json:"seasonal"`
}

// Flat returns a Seasonality with every index at 100.
func Flat(ppy int) Seasonality {
	if ppy < 1 {
		ppy = 1
	}
	indices := make([]float64, ppy)
	for i := range indices {
		indices[i] = flatIndex
	}
	return Seasonality{Period: ppy, Indices: indices}
}

// Deseasonalize tests values for seasonality at period ppy and, when the test
// passes, derives the seasonal indices. Series that fail the test, or whose
// indices are undefined, get Flat(ppy).
func Deseasonalize(values []float64, ppy int) Seasonality {
	if !IsSeasonal(values, ppy) {
		return Flat(ppy)
	}

	indices, err := SeasonalIndices(values, ppy)
	if err != nil {
		return Flat(ppy)
	}

	return Seasonality{Period: ppy, Indices: indices, Seasonal: true}
}

// Factor returns the multiplier (index/100) for observation i.
func (s Seasonality) Factor(i int) float64 {
	return s.Indices[i%s.Period] / 100
}

// Remove returns a copy of values with the seasonal effect divided out.
func (s Seasonality) Remove(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * 100 / s.Indices[i%s.Period]
	}
	return out
}

// Apply multiplies values in place by the seasonal factor of positions
// origin, origin+1, ...
func (s Seasonality) Apply(values []float64, origin int) {
	for i := range values {
		values[i] = values[i] * s.Indices[(origin+i)%s.Period] / 100
	}
}
