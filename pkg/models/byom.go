package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gonum.org/v1/gonum/mat"
)

// BYOMModel delegates fitting and prediction to an external HTTP service.
// This allows benchmarking any model (scikit-learn, TensorFlow, custom code)
// as long as the service implements two endpoints:
//
//	POST {endpoint}/fit      {"x": [[...], ...], "y": [...], "seed": 42}
//	POST {endpoint}/predict  {"window": [...]}
//
// The predict response is parsed with gjson; ValuePath selects the predicted
// number and defaults to "value".
type BYOMModel struct {
	endpoint  string
	valuePath string
	seed      int64
	client    *http.Client

	width  int
	fitted bool
}

type byomFitRequest struct {
	X    [][]float64 `json:"x"`
	Y    []float64   `json:"y"`
	Seed int64       `json:"seed"`
}

type byomPredictRequest struct {
	Window []float64 `json:"window"`
}

// NewBYOMModel creates a new BYOM model that delegates to the service at
// endpoint. An empty valuePath selects "value".
func NewBYOMModel(endpoint, valuePath string, seed int64) *BYOMModel {
	if valuePath == "" {
		valuePath = "value"
	}
	return &BYOMModel{
		endpoint:  strings.TrimRight(endpoint, "/"),
		valuePath: valuePath,
		seed:      seed,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Name returns the model identifier.
func (m *BYOMModel) Name() string {
	return "byom"
}

// Fit sends the training windows to the external service.
func (m *BYOMModel) Fit(ctx context.Context, x mat.Matrix, y []float64) error {
	rows, cols, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	req := byomFitRequest{
		X:    make([][]float64, rows),
		Y:    y,
		Seed: m.seed,
	}
	for r := range req.X {
		req.X[r] = mat.Row(nil, r, x)
	}

	if _, err := m.post(ctx, "/fit", req); err != nil {
		return err
	}

	m.width = cols
	m.fitted = true
	return nil
}

// Predict asks the external service for the value following window.
func (m *BYOMModel) Predict(ctx context.Context, window []float64) (float64, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}
	if err := checkWindow(window, m.width); err != nil {
		return 0, err
	}

	body, err := m.post(ctx, "/predict", byomPredictRequest{Window: window})
	if err != nil {
		return 0, err
	}

	value := gjson.GetBytes(body, m.valuePath)
	if !value.Exists() {
		return 0, fmt.Errorf("byom: value path %q not found in response", m.valuePath)
	}
	if value.Type != gjson.Number {
		return 0, fmt.Errorf("byom: value at %q is not a number: %s", m.valuePath, value.Raw)
	}
	return value.Float(), nil
}

// Close releases idle connections held by the client.
func (m *BYOMModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

func (m *BYOMModel) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("byom: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("byom: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("byom: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("byom: %s http %d: %s", path, resp.StatusCode, string(bodyBytes))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("byom: read response: %w", err)
	}
	return respBody, nil
}
