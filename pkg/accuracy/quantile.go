package accuracy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ParseLevel parses a quantile level written either in p-notation ("p90")
// or as a decimal ("0.9").
func ParseLevel(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantile level")
	}

	if strings.HasPrefix(strings.ToLower(s), "p") {
		percentile, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid p-notation %q: %w", s, err)
		}
		if percentile < 0 || percentile > 100 {
			return 0, fmt.Errorf("percentile %v out of range [0, 100]", percentile)
		}
		return percentile / 100, nil
	}

	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantile %q: %w", s, err)
	}
	if q < 0 || q > 1 {
		return 0, fmt.Errorf("quantile %v out of range [0, 1]", q)
	}
	return q, nil
}

// ParseLevels parses a comma-separated list of levels.
func ParseLevels(s string) ([]float64, error) {
	var levels []float64
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		q, err := ParseLevel(item)
		if err != nil {
			return nil, err
		}
		levels = append(levels, q)
	}
	return levels, nil
}

// FormatLevel renders q in p-notation: 0.9 → "p90", 0.975 → "p97.5".
func FormatLevel(q float64) string {
	percentile := math.Round(q*1e4) / 100
	if percentile == float64(int(percentile)) {
		return fmt.Sprintf("p%d", int(percentile))
	}
	return "p" + strconv.FormatFloat(percentile, 'f', -1, 64)
}

// Distribution returns the empirical quantiles of values at each level,
// keyed by FormatLevel. It returns nil when values is empty.
func Distribution(values []float64, levels []float64) map[string]float64 {
	if len(values) == 0 || len(levels) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	out := make(map[string]float64, len(levels))
	for _, q := range levels {
		out[FormatLevel(q)] = stat.Quantile(q, stat.Empirical, sorted, nil)
	}
	return out
}
