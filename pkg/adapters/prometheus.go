package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PrometheusAdapter fetches a series through the Prometheus HTTP API
// (/api/v1/query_range). VictoriaMetrics serves the same API and is reached
// with the same adapter.
//
// If the query returns multiple series, values with the same timestamp are
// SUMMED.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL (or MetricsQL) expression to evaluate.
	Query string
	// Step controls the resolution (defaults to one minute if <= 0).
	Step time.Duration
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
	// Flavor names the backend in Name(); empty means "prometheus".
	Flavor string
}

func (p *PrometheusAdapter) Name() string {
	if p.Flavor != "" {
		return p.Flavor
	}
	return "prometheus"
}

// Fetch implements Adapter. It evaluates Query over the last window at Step
// resolution.
func (p *PrometheusAdapter) Fetch(ctx context.Context, window time.Duration) (*Series, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, errors.New("prometheus adapter: ServerURL and Query are required")
	}
	step := stepOrDefault(p.Step)
	end := time.Now().UTC().Truncate(time.Second)
	start := end.Add(-window)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.FormatInt(int64(step/time.Second), 10))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var pr RangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	points, err := SumRangeResult(pr.Data.Result)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}

	return &Series{Name: p.Query, Step: step, Points: points}, nil
}

// RangeResponse is the query_range response of Prometheus and compatible
// systems.
type RangeResponse struct {
	Status string    `json:"status"`
	Data   RangeData `json:"data"`
}

// RangeData contains the result data from a range query.
type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries is a single series of a matrix result.
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// SumRangeResult merges all series into one, summing values that share a
// timestamp. The result is sorted by time.
func SumRangeResult(series []RangeSeries) ([]Point, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			ts, err := numberOf(pair[0])
			if err != nil {
				return nil, fmt.Errorf("timestamp: %w", err)
			}
			val, err := numberOf(pair[1])
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			acc[int64(ts)] += val
		}
	}

	points := make([]Point, 0, len(acc))
	for ts, v := range acc {
		points = append(points, Point{TS: time.Unix(ts, 0).UTC(), Value: v})
	}
	sortPoints(points)
	return points, nil
}

func numberOf(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
