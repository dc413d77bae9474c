// Package config parses the bench command configuration.
//
// Every flag has an environment variable fallback; flags win over the
// environment, which wins over the defaults. Adapter-specific settings are
// read from ADAPTER_* variables (ADAPTER_QUERY → "query").
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/m4bench/pkg/accuracy"
	"github.com/HatiCode/m4bench/pkg/tls"
)

// Config holds all bench configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Source of the series: "csv" reads M4 files, anything else names a
	// live adapter kind.
	Adapter       string
	AdapterConfig map[string]string
	Input         string
	TestInput     string
	SeriesID      string
	Window        time.Duration
	Step          time.Duration

	Frequency       string
	FrequenciesFile string
	Series          []string
	Limit           int

	Model         string
	Seed          int64
	Hidden        int
	Activation    string
	Epochs        int
	LearningRate  float64
	Ridge         float64
	BYOMURL       string
	BYOMValuePath string

	FailFast     bool
	AlignHoldout bool

	// Quantile levels of the per-series errors reported in the summary.
	Quantiles []float64

	Output         string
	PushgatewayURL string
}

// Models lists the accepted MODEL values.
var Models = []string{"mean", "linear", "mlp", "rnn", "byom"}

// ParseFlags parses os.Args and the environment. Invalid configuration is
// fatal.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers the bench flags on fs, parses args and validates the result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	var series, quantiles string

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ""), "HTTP listen address for the results API (empty: exit after the run)")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty: disabled)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable mTLS for the results API and adapter clients")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Result storage: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 24*time.Hour), "Result snapshot TTL")

	fs.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", "csv"), "Series source: csv, prometheus, victoriametrics, or http")
	fs.StringVar(&cfg.Input, "input", getEnv("INPUT", ""), "M4 train CSV (adapter=csv)")
	fs.StringVar(&cfg.TestInput, "test-input", getEnv("TEST_INPUT", ""), "M4 test CSV appended to the train series (optional)")
	fs.StringVar(&cfg.SeriesID, "series-id", getEnv("SERIES_ID", "live"), "Series ID for adapter-fetched data")
	fs.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 7*24*time.Hour), "History fetched from live adapters")
	fs.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Hour), "Sampling step for live adapters")

	fs.StringVar(&cfg.Frequency, "frequency", getEnv("FREQUENCY", "hourly"), "Frequency class: yearly, quarterly, monthly, weekly, daily, hourly")
	fs.StringVar(&cfg.FrequenciesFile, "frequencies-file", getEnv("FREQUENCIES_FILE", ""), "YAML file overriding the frequency table")
	fs.StringVar(&series, "series", getEnv("SERIES", ""), "Comma-separated series IDs to benchmark (empty: all)")
	fs.IntVar(&cfg.Limit, "limit", getEnvInt("LIMIT", 0), "Benchmark only the first N series (0: all)")

	fs.StringVar(&cfg.Model, "model", getEnv("MODEL", "mlp"), "Forecaster: "+strings.Join(Models, ", "))
	fs.Int64Var(&cfg.Seed, "seed", int64(getEnvInt("SEED", 42)), "Random seed passed to every forecaster")
	fs.IntVar(&cfg.Hidden, "hidden", getEnvInt("HIDDEN", 6), "Hidden units (mlp, rnn)")
	fs.StringVar(&cfg.Activation, "activation", getEnv("ACTIVATION", "identity"), "MLP activation: identity, relu, tanh")
	fs.IntVar(&cfg.Epochs, "epochs", getEnvInt("EPOCHS", 100), "Training epochs (mlp, rnn)")
	fs.Float64Var(&cfg.LearningRate, "learning-rate", getEnvFloat("LEARNING_RATE", 0.001), "Learning rate (mlp, rnn)")
	fs.Float64Var(&cfg.Ridge, "ridge", getEnvFloat("RIDGE", 0), "Ridge penalty (linear)")
	fs.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", ""), "BYOM service URL (required when model=byom)")
	fs.StringVar(&cfg.BYOMValuePath, "byom-value-path", getEnv("BYOM_VALUE_PATH", "value"), "gjson path of the prediction in BYOM responses")

	fs.BoolVar(&cfg.FailFast, "fail-fast", getEnvBool("FAIL_FAST", false), "Stop at the first failing series")
	fs.BoolVar(&cfg.AlignHoldout, "align-holdout", getEnvBool("ALIGN_HOLDOUT", false), "Reapply trend and seasonality at the held-out positions")

	fs.StringVar(&quantiles, "quantiles", getEnv("QUANTILES", "p50,p90"), "Error quantiles in the run summary (p-notation or decimals)")
	fs.StringVar(&cfg.Output, "output", getEnv("OUTPUT", ""), "Write the JSON report to this file (\"-\": stdout)")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", getEnv("PUSHGATEWAY_URL", ""), "Push run metrics to this Pushgateway")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AdapterConfig = parseAdapterConfig(os.Environ())
	cfg.Series = splitList(series)
	levels, err := accuracy.ParseLevels(quantiles)
	if err != nil {
		return nil, fmt.Errorf("--quantiles: %w", err)
	}
	cfg.Quantiles = levels

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.Adapter {
	case "csv":
		if c.Input == "" {
			errs = append(errs, errors.New("--input is required when adapter=csv"))
		}
	case "prometheus", "victoriametrics", "http":
		if c.Window <= 0 || c.Step <= 0 {
			errs = append(errs, errors.New("window and step must be > 0"))
		} else if c.Step > c.Window {
			errs = append(errs, fmt.Errorf("step (%v) cannot exceed window (%v)", c.Step, c.Window))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid adapter %q (must be csv, prometheus, victoriametrics, or http)", c.Adapter))
	}

	if !contains(Models, c.Model) {
		errs = append(errs, fmt.Errorf("invalid model %q (must be %s)", c.Model, strings.Join(Models, ", ")))
	}
	if c.Model == "byom" && c.BYOMURL == "" {
		errs = append(errs, errors.New("--byom-url is required when model=byom"))
	}
	if c.Hidden < 1 || c.Epochs < 1 || c.LearningRate <= 0 {
		errs = append(errs, errors.New("hidden, epochs and learning-rate must be > 0"))
	}
	if c.Ridge < 0 {
		errs = append(errs, errors.New("ridge cannot be negative"))
	}
	if c.Limit < 0 {
		errs = append(errs, errors.New("limit cannot be negative"))
	}

	switch c.Storage {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("--redis-addr is required when storage=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat))
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// parseAdapterConfig turns ADAPTER_* entries of environ into a map keyed by
// the lowerCamelCase suffix. ADAPTER itself is not included.
func parseAdapterConfig(environ []string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, "ADAPTER_") || len(name) == len("ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(name[len("ADAPTER_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
