package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAdapter_BasicGET(t *testing.T) {
	json := `{
        "data": [
            {"timestamp": "2025-01-01T00:00:00Z", "value": 100.5},
            {"timestamp": "2025-01-01T00:01:00Z", "value": 110.2},
            {"timestamp": "2025-01-01T00:02:00Z", "value": 120.8}
        ]
    }`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, json)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:           server.URL,
		ValuePath:     "data.#.value",
		TimestampPath: "data.#.timestamp",
		Step:          time.Minute,
	}

	series, err := adapter.Fetch(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(series.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(series.Points))
	}

	expectedValues := []float64{100.5, 110.2, 120.8}
	for i, p := range series.Points {
		if p.Value != expectedValues[i] {
			t.Errorf("point %d: expected value %f, got %v", i, expectedValues[i], p.Value)
		}
	}
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !series.Points[0].TS.Equal(want) {
		t.Errorf("first timestamp = %v, want %v", series.Points[0].TS, want)
	}
}

func TestHTTPAdapter_POST_WithBody(t *testing.T) {
	receivedBody := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)

		fmt.Fprint(w, `{"results": [{"ts": 1704067200, "val": 42.0}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:             server.URL,
		Method:          http.MethodPost,
		Body:            `{"window": "{{.Window}}s", "step": {{.Step}}}`,
		Headers:         map[string]string{"Content-Type": "application/json"},
		ValuePath:       "results.#.val",
		TimestampPath:   "results.#.ts",
		TimestampFormat: "unix",
		Step:            time.Minute,
	}

	series, err := adapter.Fetch(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(series.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(series.Points))
	}
	if receivedBody != `{"window": "3600s", "step": 60}` {
		t.Errorf("unexpected body: %s", receivedBody)
	}
	if series.Points[0].Value != 42.0 {
		t.Errorf("expected value 42.0, got %v", series.Points[0].Value)
	}
	if series.Points[0].TS.Unix() != 1704067200 {
		t.Errorf("expected ts 1704067200, got %d", series.Points[0].TS.Unix())
	}
}

func TestHTTPAdapter_CustomHeaders(t *testing.T) {
	receivedAuth := ""
	receivedCustom := ""

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		receivedCustom = r.Header.Get("X-Custom-Header")
		fmt.Fprint(w, `{"metrics": [{"time": "2025-01-01T12:00:00Z", "count": 99}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL: server.URL,
		Headers: map[string]string{
			"Authorization":   "Bearer {{.Token}}",
			"X-Custom-Header": "static-value",
		},
		TemplateVars:  map[string]string{"Token": "secret123"},
		ValuePath:     "metrics.#.count",
		TimestampPath: "metrics.#.time",
	}

	if _, err := adapter.Fetch(context.Background(), 10*time.Minute); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if receivedAuth != "Bearer secret123" {
		t.Errorf("expected 'Bearer secret123', got '%s'", receivedAuth)
	}
	if receivedCustom != "static-value" {
		t.Errorf("expected 'static-value', got '%s'", receivedCustom)
	}
}

func TestHTTPAdapter_TimestampFormats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		body   string
		want   int64
	}{
		{name: "unix seconds", format: "unix", body: `{"p": [{"ts": 1704067200, "v": 10}]}`, want: 1704067200},
		{name: "unix millis", format: "unix_milli", body: `{"p": [{"ts": 1704067200000, "v": 10}]}`, want: 1704067200},
		{name: "rfc3339", format: "", body: `{"p": [{"ts": "2024-01-01T00:00:00Z", "v": 10}]}`, want: 1704067200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			adapter := &HTTPAdapter{
				URL:             server.URL,
				ValuePath:       "p.#.v",
				TimestampPath:   "p.#.ts",
				TimestampFormat: tt.format,
			}
			series, err := adapter.Fetch(context.Background(), time.Hour)
			if err != nil {
				t.Fatalf("Fetch error: %v", err)
			}
			if got := series.Points[0].TS.Unix(); got != tt.want {
				t.Errorf("timestamp = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHTTPAdapter_Sorting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [
			{"ts": "2025-01-01T00:02:00Z", "v": 3},
			{"ts": "2025-01-01T00:00:00Z", "v": 1},
			{"ts": "2025-01-01T00:01:00Z", "v": 2}
		]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{URL: server.URL, ValuePath: "data.#.v", TimestampPath: "data.#.ts"}
	series, err := adapter.Fetch(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	for i, p := range series.Points {
		if p.Value != float64(i+1) {
			t.Errorf("point %d should have value %d, got %v", i, i+1, p.Value)
		}
	}
}

func TestHTTPAdapter_ResponseErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "mismatched arrays", status: http.StatusOK, body: `{"values": [1, 2, 3], "timestamps": ["2025-01-01T00:00:00Z"]}`},
		{name: "missing values", status: http.StatusOK, body: `{"timestamps": ["2025-01-01T00:00:00Z"]}`},
		{name: "non numeric value", status: http.StatusOK, body: `{"values": ["x"], "timestamps": ["2025-01-01T00:00:00Z"]}`},
		{name: "bad timestamp", status: http.StatusOK, body: `{"values": [1], "timestamps": ["yesterday"]}`},
		{name: "empty", status: http.StatusOK, body: `{"values": [], "timestamps": []}`},
		{name: "http error", status: http.StatusInternalServerError, body: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			adapter := &HTTPAdapter{URL: server.URL, ValuePath: "values", TimestampPath: "timestamps"}
			if _, err := adapter.Fetch(context.Background(), time.Hour); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestHTTPAdapter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		adapter HTTPAdapter
		wantErr bool
	}{
		{name: "valid", adapter: HTTPAdapter{URL: "http://x", ValuePath: "v", TimestampPath: "t"}},
		{name: "missing url", adapter: HTTPAdapter{ValuePath: "v", TimestampPath: "t"}, wantErr: true},
		{name: "missing value path", adapter: HTTPAdapter{URL: "http://x", TimestampPath: "t"}, wantErr: true},
		{name: "missing timestamp path", adapter: HTTPAdapter{URL: "http://x", ValuePath: "v"}, wantErr: true},
		{name: "bad format", adapter: HTTPAdapter{URL: "http://x", ValuePath: "v", TimestampPath: "t", TimestampFormat: "julian"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adapter.ValidateConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPAdapter_Name(t *testing.T) {
	adapter := &HTTPAdapter{}
	if name := adapter.Name(); name != "http" {
		t.Errorf("expected name 'http', got %q", name)
	}
}

func TestHTTPAdapter_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, `{"values": [1], "timestamps": ["2025-01-01T00:00:00Z"]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{URL: server.URL, ValuePath: "values", TimestampPath: "timestamps"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := adapter.Fetch(ctx, time.Hour); err == nil {
		t.Fatal("expected error due to context cancellation")
	}
}
