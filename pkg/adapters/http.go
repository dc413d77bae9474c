package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPAdapter calls a REST endpoint and extracts a series from the JSON
// response with gjson paths.
//
// Body and header values are Go templates with these variables, plus any
// entries of TemplateVars:
//
//	{{.Window}}        window length in seconds
//	{{.Start}}         start time, Unix seconds
//	{{.End}}           end time, Unix seconds
//	{{.Step}}          step in seconds
//	{{.StartRFC3339}}  start time, RFC3339
//	{{.EndRFC3339}}    end time, RFC3339
//
// Example:
//
//	adapter := &HTTPAdapter{
//	    URL:           "https://api.example.com/sales",
//	    Method:        "POST",
//	    Body:          `{"from": {{.Start}}, "to": {{.End}}}`,
//	    ValuePath:     "data.#.value",
//	    TimestampPath: "data.#.timestamp",
//	}
type HTTPAdapter struct {
	URL     string
	Method  string // defaults to GET
	Headers map[string]string
	Body    string

	// ValuePath selects the values, e.g. "data.#.value".
	ValuePath string
	// TimestampPath selects the timestamps; it must yield as many elements as
	// ValuePath.
	TimestampPath string
	// TimestampFormat is rfc3339 (default), unix or unix_milli.
	TimestampFormat string

	Step         time.Duration
	HTTPClient   *http.Client
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Fetch implements Adapter.
func (h *HTTPAdapter) Fetch(ctx context.Context, window time.Duration) (*Series, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}

	step := stepOrDefault(h.Step)
	end := time.Now().UTC().Truncate(time.Second)
	start := end.Add(-window)

	vars := map[string]any{
		"Window":       int64(window / time.Second),
		"Start":        start.Unix(),
		"End":          end.Unix(),
		"Step":         int64(step / time.Second),
		"StartRFC3339": start.Format(time.RFC3339),
		"EndRFC3339":   end.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		vars[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := render(h.Body, vars)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := render(value, vars)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	points, err := h.extract(payload)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}

	return &Series{Name: h.URL, Step: step, Points: points}, nil
}

func (h *HTTPAdapter) extract(payload []byte) ([]Point, error) {
	values := gjson.GetBytes(payload, h.ValuePath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	timestamps := gjson.GetBytes(payload, h.TimestampPath)
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	vals := values.Array()
	stamps := timestamps.Array()
	if len(vals) != len(stamps) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(vals), len(stamps))
	}

	points := make([]Point, 0, len(vals))
	for i := range vals {
		if vals[i].Type != gjson.Number {
			return nil, fmt.Errorf("value[%d] is not a number: %s", i, vals[i].Raw)
		}
		ts, err := h.parseTimestamp(stamps[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points = append(points, Point{TS: ts, Value: vals[i].Float()})
	}

	sortPoints(points)
	return points, nil
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

// ValidateConfig checks the required fields and the timestamp format.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}

func render(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
