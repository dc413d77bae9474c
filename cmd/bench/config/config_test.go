package config

import (
	"flag"
	"io"
	"os"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestGetEnv(t *testing.T) {
	t.Setenv("M4BENCH_TEST_VAR", "from-env")

	if got := getEnv("M4BENCH_TEST_VAR", "default"); got != "from-env" {
		t.Errorf("getEnv() = %q, want %q", got, "from-env")
	}
	if got := getEnv("M4BENCH_NONEXISTENT", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q", got, "default")
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("M4BENCH_INT", "42")
	t.Setenv("M4BENCH_BAD_INT", "not-a-number")
	t.Setenv("M4BENCH_FLOAT", "0.25")
	t.Setenv("M4BENCH_DURATION", "90s")
	t.Setenv("M4BENCH_BOOL", "1")

	if got := getEnvInt("M4BENCH_INT", 10); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("M4BENCH_BAD_INT", 10); got != 10 {
		t.Errorf("getEnvInt() with invalid value = %d, want 10", got)
	}
	if got := getEnvFloat("M4BENCH_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	if got := getEnvDuration("M4BENCH_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 1m30s", got)
	}
	if got := getEnvBool("M4BENCH_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(newFlagSet(), []string{"-input", "Hourly-train.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Adapter != "csv" {
		t.Errorf("Adapter = %q, want csv", cfg.Adapter)
	}
	if cfg.Model != "mlp" || cfg.Seed != 42 || cfg.Hidden != 6 || cfg.Epochs != 100 {
		t.Errorf("model defaults = %s seed=%d hidden=%d epochs=%d", cfg.Model, cfg.Seed, cfg.Hidden, cfg.Epochs)
	}
	if cfg.LearningRate != 0.001 {
		t.Errorf("LearningRate = %v, want 0.001", cfg.LearningRate)
	}
	if cfg.Storage != "memory" || cfg.Frequency != "hourly" {
		t.Errorf("Storage = %q, Frequency = %q", cfg.Storage, cfg.Frequency)
	}
	if len(cfg.Quantiles) != 2 || cfg.Quantiles[0] != 0.5 || cfg.Quantiles[1] != 0.9 {
		t.Errorf("Quantiles = %v, want [0.5 0.9]", cfg.Quantiles)
	}
	if cfg.FailFast || cfg.AlignHoldout {
		t.Error("FailFast and AlignHoldout should default to false")
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("MODEL", "rnn")
	t.Setenv("SERIES", "H1, H2,,H3")

	cfg, err := Parse(newFlagSet(), []string{"-input", "x.csv", "-model", "linear", "-ridge", "0.5"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Model != "linear" {
		t.Errorf("Model = %q, want linear (flag wins over env)", cfg.Model)
	}
	if cfg.Ridge != 0.5 {
		t.Errorf("Ridge = %v, want 0.5", cfg.Ridge)
	}
	want := []string{"H1", "H2", "H3"}
	if len(cfg.Series) != len(want) {
		t.Fatalf("Series = %v, want %v", cfg.Series, want)
	}
	for i := range want {
		if cfg.Series[i] != want[i] {
			t.Errorf("Series[%d] = %q, want %q", i, cfg.Series[i], want[i])
		}
	}
}

func TestParse_InvalidQuantiles(t *testing.T) {
	if _, err := Parse(newFlagSet(), []string{"-input", "x.csv", "-quantiles", "p50,p200"}); err == nil {
		t.Error("Parse() with out of range quantile error = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Adapter:      "csv",
			Input:        "train.csv",
			Model:        "mlp",
			Hidden:       6,
			Epochs:       100,
			LearningRate: 0.001,
			Storage:      "memory",
			LogFormat:    "text",
			Window:       time.Hour,
			Step:         time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "csv without input", mutate: func(c *Config) { c.Input = "" }, wantErr: true},
		{name: "prometheus", mutate: func(c *Config) { c.Adapter = "prometheus"; c.Input = "" }},
		{name: "step exceeds window", mutate: func(c *Config) { c.Adapter = "http"; c.Step = 2 * time.Hour }, wantErr: true},
		{name: "unknown adapter", mutate: func(c *Config) { c.Adapter = "kafka" }, wantErr: true},
		{name: "unknown model", mutate: func(c *Config) { c.Model = "arima" }, wantErr: true},
		{name: "byom without url", mutate: func(c *Config) { c.Model = "byom" }, wantErr: true},
		{name: "byom with url", mutate: func(c *Config) { c.Model = "byom"; c.BYOMURL = "http://localhost:8082" }},
		{name: "zero epochs", mutate: func(c *Config) { c.Epochs = 0 }, wantErr: true},
		{name: "negative ridge", mutate: func(c *Config) { c.Ridge = -1 }, wantErr: true},
		{name: "negative limit", mutate: func(c *Config) { c.Limit = -1 }, wantErr: true},
		{name: "redis", mutate: func(c *Config) { c.Storage = "redis"; c.RedisAddr = "localhost:6379" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "s3" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "tls without files", mutate: func(c *Config) { c.TLS.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseAdapterConfig(t *testing.T) {
	environ := []string{
		"ADAPTER=prometheus",
		"ADAPTER_URL=http://prom:9090",
		"ADAPTER_QUERY=sum(rate(x[1m]))",
		"ADAPTER_VALUE_PATH=data.#.v",
		"ADAPTER_TEMPLATE_VARS={\"a\":\"b=c\"}",
		"ADAPTER_=ignored",
		"PATH=/usr/bin",
	}

	got := parseAdapterConfig(environ)
	want := map[string]string{
		"url":          "http://prom:9090",
		"query":        "sum(rate(x[1m]))",
		"valuePath":    "data.#.v",
		"templateVars": "{\"a\":\"b=c\"}",
	}

	if len(got) != len(want) {
		t.Errorf("parseAdapterConfig() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("config[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"QUERY":            "query",
		"VALUE_PATH":       "valuePath",
		"TIMESTAMP_FORMAT": "timestampFormat",
		"A_B_C":            "aBC",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFlags_UsesCommandLine(t *testing.T) {
	oldArgs, oldFlags := os.Args, flag.CommandLine
	defer func() { os.Args, flag.CommandLine = oldArgs, oldFlags }()

	flag.CommandLine = newFlagSet()
	os.Args = []string{"bench", "-input", "train.csv", "-model", "mean"}

	cfg := ParseFlags()
	if cfg.Model != "mean" || cfg.Input != "train.csv" {
		t.Errorf("ParseFlags() = model %q input %q", cfg.Model, cfg.Input)
	}
}
