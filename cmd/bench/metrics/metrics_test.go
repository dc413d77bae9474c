package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/m4bench/pkg/pipeline"
)

func TestMetrics_Observer(t *testing.T) {
	m := New()
	var _ pipeline.Observer = m

	m.ObserveStage(pipeline.StageFit, 20*time.Millisecond)
	m.ObserveSeries(pipeline.SeriesResult{ID: "H1", Model: "mlp", SMAPE: 0.1, MASE: 0.8})
	m.ObserveSeries(pipeline.SeriesResult{ID: "H2", Model: "mlp", SMAPE: 0.3, MASE: 1.2})
	m.ObserveFailure(&pipeline.StageError{SeriesID: "H3", Stage: pipeline.StageWindow, Err: errors.New("too short")})

	if got := testutil.ToFloat64(m.SeriesTotal.WithLabelValues("mlp", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FailuresTotal.WithLabelValues("window")); got != 1 {
		t.Errorf("window failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.StageSeconds); got != 1 {
		t.Errorf("stage series = %d, want 1", got)
	}

	m.RecordRun(&pipeline.Report{MeanSMAPE: 0.2, MeanMASE: 1}, 3*time.Second)
	if got := testutil.ToFloat64(m.MeanSMAPE); got != 0.2 {
		t.Errorf("mean smape = %v, want 0.2", got)
	}
	if got := testutil.ToFloat64(m.RunSeconds); got != 3 {
		t.Errorf("run seconds = %v, want 3", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordError("storage", "put")

	if got := testutil.ToFloat64(b.ErrorsTotal.WithLabelValues("storage", "put")); got != 0 {
		t.Errorf("second registry saw %v errors, want 0", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.MeanMASE.Set(0.9)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "m4bench_mean_mase 0.9") {
		t.Errorf("exposition missing m4bench_mean_mase:\n%s", rec.Body.String())
	}
}

func TestMetrics_Push(t *testing.T) {
	var path, body string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New()
	m.MeanSMAPE.Set(0.15)
	if err := m.Push(context.Background(), gateway.URL, "run-1"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if path != "/metrics/job/m4bench/run_id/run-1" {
		t.Errorf("push path = %q", path)
	}
	if len(body) == 0 {
		t.Error("push body is empty")
	}
}
