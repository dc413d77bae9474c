// Package window turns a series into a supervised learning problem: fixed
// width input windows of lagged observations, each paired with the
// observation that follows it.
package window

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateSeries is returned when a series is too short for the
// requested window width and horizon.
var ErrDegenerateSeries = errors.New("series too short for window and horizon")

// Windows is the train/test split of one series.
//
// XTrain has one row per training window and Lags columns, oldest lag first;
// YTrain[r] is the point following row r. XTest holds exactly one row, the
// last Lags points before the held-out horizon, which seeds the recursive
// forecast. YTest holds the Horizon held-out points.
type Windows struct {
	XTrain *mat.Dense
	YTrain []float64
	XTest  *mat.Dense
	YTest  []float64
}

// Split builds the windows for series with lags input points per row and a
// held-out horizon of fh points. The series must be longer than lags+fh.
func Split(series []float64, lags, fh int) (Windows, error) {
	n := len(series)
	if lags < 1 || fh < 1 {
		return Windows{}, fmt.Errorf("%w: lags=%d horizon=%d", ErrDegenerateSeries, lags, fh)
	}
	if n <= lags+fh {
		return Windows{}, fmt.Errorf("%w: length %d, need more than %d", ErrDegenerateSeries, n, lags+fh)
	}

	train := series[:n-fh]
	test := series[n-fh-lags:]

	rows := len(train) - lags
	xTrain := mat.NewDense(rows, lags, nil)
	yTrain := make([]float64, rows)
	for r := 0; r < rows; r++ {
		xTrain.SetRow(r, train[r:r+lags])
		yTrain[r] = train[r+lags]
	}

	xTest := mat.NewDense(1, lags, nil)
	xTest.SetRow(0, test[:lags])

	yTest := make([]float64, fh)
	copy(yTest, test[lags:])

	return Windows{
		XTrain: xTrain,
		YTrain: yTrain,
		XTest:  xTest,
		YTest:  yTest,
	}, nil
}

// Seed returns a copy of the single test window.
func (w Windows) Seed() []float64 {
	return mat.Row(nil, 0, w.XTest)
}

// Targets returns the held-out points of series for horizon fh, the same
// values Split places in YTest. It is used to score a forecast against the
// original scale after reconstruction.
func Targets(series []float64, lags, fh int) ([]float64, error) {
	w, err := Split(series, lags, fh)
	if err != nil {
		return nil, err
	}
	return w.YTest, nil
}
