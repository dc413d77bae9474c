package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// New creates an adapter based on kind and a generic configuration map.
//
// Supported kinds:
//   - "prometheus": Prometheus adapter (url, query)
//   - "victoriametrics": Prometheus adapter with VictoriaMetrics defaults
//   - "http": generic HTTP adapter (url, valuePath, timestampPath, method,
//     timestampFormat, body, headers, templateVars)
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, step time.Duration) (Adapter, error) {
	switch kind {
	case "prometheus":
		return newPrometheus(config, step, "prometheus", "http://localhost:9090")
	case "victoriametrics":
		return newPrometheus(config, step, "victoriametrics", "http://localhost:8428")
	case "http":
		return newHTTP(config, step)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, or http)", kind)
	}
}

func newPrometheus(config map[string]string, step time.Duration, flavor, defaultURL string) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", flavor)
	}

	url := config["url"]
	if url == "" {
		url = defaultURL
	}

	return &PrometheusAdapter{
		ServerURL: url,
		Query:     query,
		Step:      step,
		Flavor:    flavor,
	}, nil
}

func newHTTP(config map[string]string, step time.Duration) (Adapter, error) {
	adapter := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		Step:            step,
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &adapter.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &adapter.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := adapter.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return adapter, nil
}

// SetHTTPClient replaces the HTTP client of adapters that make HTTP calls,
// e.g. with one configured for mTLS. Other adapters are left unchanged.
func SetHTTPClient(a Adapter, client *http.Client) {
	switch v := a.(type) {
	case *PrometheusAdapter:
		v.HTTPClient = client
	case *HTTPAdapter:
		v.HTTPClient = client
	}
}
