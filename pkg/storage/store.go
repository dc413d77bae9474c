package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/HatiCode/m4bench/pkg/pipeline"
)

// ErrInvalidSeriesID is returned for empty series IDs or IDs with characters
// that cannot be used in a storage key.
var ErrInvalidSeriesID = errors.New("invalid series id")

// Snapshot is the stored outcome of one benchmarked series.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	SeriesID    string    `json:"series_id"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`

	Seasonal        bool      `json:"seasonal"`
	SeasonalIndices []float64 `json:"seasonal_indices,omitempty"`
	TrendSlope      float64   `json:"trend_slope"`
	TrendIntercept  float64   `json:"trend_intercept"`

	Forecast       []float64 `json:"forecast"`
	Actual         []float64 `json:"actual"`
	SMAPE          float64   `json:"smape"`
	MASE           float64   `json:"mase"`
	MASEDegenerate bool      `json:"mase_degenerate,omitempty"`
}

// Store keeps the latest snapshot per series.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, seriesID string) (Snapshot, bool, error)
	// List returns every stored snapshot ordered by series ID.
	List(ctx context.Context) ([]Snapshot, error)
}

// NewSnapshot converts a pipeline result into a snapshot stamped with runID
// and the current time. Slices are copied.
func NewSnapshot(runID string, r pipeline.SeriesResult) Snapshot {
	s := Snapshot{
		RunID:          runID,
		SeriesID:       r.ID,
		Model:          r.Model,
		GeneratedAt:    time.Now().UTC(),
		Seasonal:       r.Seasonality.Seasonal,
		TrendSlope:     r.Trend.Slope,
		TrendIntercept: r.Trend.Intercept,
		Forecast:       append([]float64(nil), r.Forecast...),
		Actual:         append([]float64(nil), r.Actual...),
		SMAPE:          r.SMAPE,
		MASE:           r.MASE,
		MASEDegenerate: r.MASEDegenerate,
	}
	if r.Seasonality.Seasonal {
		s.SeasonalIndices = append([]float64(nil), r.Seasonality.Indices...)
	}
	return s
}

// ValidateSeriesID accepts IDs made of letters, digits, '-', '_' and '.'.
func ValidateSeriesID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSeriesID)
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("%w: %q: only alphanumeric, '-', '_' and '.' allowed", ErrInvalidSeriesID, id)
		}
	}
	return nil
}

func sortBySeries(snapshots []Snapshot) {
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SeriesID < snapshots[j].SeriesID
	})
}
