// Package decompose removes and describes the seasonal and trend structure of
// a univariate series.
//
// The procedures follow classical multiplicative decomposition:
//
//   - Autocorrelation estimates the lag-k sample autocorrelation.
//   - IsSeasonal runs the 90% significance test on the autocorrelation at the
//     seasonal lag.
//   - MovingAverage and SeasonalIndices derive one multiplicative index per
//     phase of the cycle, expressed as a percentage (100 means no effect).
//   - FitTrend fits a straight line over the observation index.
//
// Every function treats its input as read-only and returns new slices, so a
// caller can chain Remove and Apply calls without losing the original series.
package decompose
