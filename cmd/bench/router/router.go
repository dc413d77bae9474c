// Package router configures the HTTP API of the bench serve mode.
//
// Routes:
//   - GET /results?series=<id> - latest snapshot for one series
//   - GET /results             - all stored snapshots
//   - GET /summary             - summary of the last run
//   - GET /healthz             - health check (store connectivity)
//   - GET /metrics             - Prometheus metrics
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/HatiCode/m4bench/pkg/httpx"
	"github.com/HatiCode/m4bench/pkg/pipeline"
	"github.com/HatiCode/m4bench/pkg/storage"
)

// Summary describes one completed run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Model      string    `json:"model"`
	Frequency  string    `json:"frequency"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Series     int       `json:"series"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	MeanSMAPE  float64   `json:"mean_smape"`
	MeanMASE   float64   `json:"mean_mase"`

	// Empirical quantiles of the per-series errors, keyed "p50", "p90", ...
	SMAPEQuantiles map[string]float64 `json:"smape_quantiles,omitempty"`
	MASEQuantiles  map[string]float64 `json:"mase_quantiles,omitempty"`

	Failures []pipeline.Failure `json:"failures,omitempty"`
}

// Deps are the collaborators of the API handlers. Summary and Health may be
// nil; Metrics defaults to 404.
type Deps struct {
	Store   storage.Store
	Summary func() (Summary, bool)
	Health  func(ctx context.Context) error
	Metrics http.Handler
	Logger  *slog.Logger
}

// SetupRoutes returns the API handler wrapped in recovery and request
// logging middleware.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = http.NotFoundHandler()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandler(d.Health))
	mux.HandleFunc("GET /results", handleResults(d.Store, d.Logger))
	mux.HandleFunc("GET /summary", handleSummary(d.Summary, d.Logger))
	mux.Handle("GET /metrics", d.Metrics)

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(d.Logger),
		httpx.LoggingMiddleware(d.Logger),
	)
}

func handleResults(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		id := r.URL.Query().Get("series")
		if id == "" {
			snapshots, err := store.List(ctx)
			if err != nil {
				logger.Error("failed to list snapshots", "error", err)
				httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeJSON(w, logger, map[string]any{
				"count":   len(snapshots),
				"results": snapshots,
			})
			return
		}

		if err := storage.ValidateSeriesID(id); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid series id format")
			return
		}

		snapshot, found, err := store.GetLatest(ctx, id)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				httpx.WriteErrorMessage(w, http.StatusGatewayTimeout, "store timeout")
				return
			}
			logger.Error("failed to get snapshot", "series", id, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no result for series %q", id))
			return
		}

		writeJSON(w, logger, snapshot)
	}
}

func handleSummary(summary func() (Summary, bool), logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if summary == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no completed run")
			return
		}
		s, ok := summary()
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no completed run")
			return
		}
		writeJSON(w, logger, s)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	if err := httpx.WriteJSON(w, http.StatusOK, v); err != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}
