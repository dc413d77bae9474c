// Package adapters fetches a single live series from an external metrics
// backend so it can be benchmarked next to file based datasets.
//
// Each adapter implements the Adapter interface. Available adapters:
//   - PrometheusAdapter — range queries against the Prometheus HTTP API, also
//     used for VictoriaMetrics through its Prometheus-compatible endpoint
//   - HTTPAdapter       — any REST API with a JSON response, values and
//     timestamps selected with gjson paths
//
// Adapters only pull and order raw points. Turning them into a benchmark
// input (gap filling, frequency class) is left to the dataset package.
package adapters

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNoData is returned when a backend answers with an empty result.
var ErrNoData = errors.New("adapter returned no data points")

// Point is one observation.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Series is an ordered set of observations at a nominal step.
type Series struct {
	Name   string        `json:"name"`
	Step   time.Duration `json:"step"`
	Points []Point       `json:"points"`
}

// Adapter is the interface that all series sources implement.
//
// Fetch is synchronous and must respect context cancellation and deadlines.
type Adapter interface {
	// Fetch returns the points of the last window, oldest first.
	Fetch(ctx context.Context, window time.Duration) (*Series, error)

	// Name returns a short identifier such as "prometheus" or "http".
	Name() string
}

// Regular returns the values of s on a regular grid of s.Step, starting at the
// first point. Missing steps are filled by linear interpolation between their
// neighbours; points that fall between grid steps are assigned to the nearest
// step, the later one winning on ties.
func (s *Series) Regular() []float64 {
	if len(s.Points) == 0 {
		return nil
	}
	points := append([]Point(nil), s.Points...)
	sortPoints(points)

	if s.Step <= 0 {
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		return values
	}

	origin := points[0].TS
	last := int((points[len(points)-1].TS.Sub(origin) + s.Step/2) / s.Step)
	values := make([]float64, last+1)
	filled := make([]bool, last+1)
	for _, p := range points {
		slot := int((p.TS.Sub(origin) + s.Step/2) / s.Step)
		values[slot] = p.Value
		filled[slot] = true
	}

	prev := 0
	for i := 1; i <= last; i++ {
		if !filled[i] {
			continue
		}
		if gap := i - prev; gap > 1 {
			for k := 1; k < gap; k++ {
				frac := float64(k) / float64(gap)
				values[prev+k] = values[prev] + frac*(values[i]-values[prev])
			}
		}
		prev = i
	}
	return values
}

func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].TS.Before(points[j].TS) })
}

func stepOrDefault(step time.Duration) time.Duration {
	if step <= 0 {
		return time.Minute
	}
	return step
}
