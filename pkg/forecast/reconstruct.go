package forecast

import (
	"github.com/HatiCode/m4bench/pkg/decompose"
	"gonum.org/v1/gonum/floats"
)

// ceilingFactor bounds a forecast relative to the largest observed value.
const ceilingFactor = 1000

// Retrend adds the trend line back onto forecast in place. forecast[i] gets
// trend.At(origin+i).
func Retrend(forecast []float64, trend decompose.Trend, origin int) {
	trend.Apply(forecast, origin)
}

// Reseasonalize multiplies forecast in place by the seasonal factor of
// position origin+i.
func Reseasonalize(forecast []float64, season decompose.Seasonality, origin int) {
	season.Apply(forecast, origin)
}

// Clip bounds forecast in place: negative values become 0, then values above
// 1000*ceiling are replaced by ceiling. The order matters when ceiling is
// negative.
func Clip(forecast []float64, ceiling float64) {
	for i, v := range forecast {
		if v < 0 {
			forecast[i] = 0
		}
	}
	limit := ceilingFactor * ceiling
	for i, v := range forecast {
		if v > limit {
			forecast[i] = ceiling
		}
	}
}

// Ceiling returns the largest value of series, or 0 for an empty series.
func Ceiling(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return floats.Max(series)
}
