// Command bench runs the seasonal-decomposition forecasting benchmark.
//
// Every series is deseasonalized, detrended, windowed, fitted with the chosen
// forecaster, forecast recursively over the holdout horizon, reconstructed
// and scored with sMAPE and MASE. Series come from M4 CSV files or from a
// live metrics adapter.
//
// With -listen set the command keeps serving the results after the run:
//   - GET /results?series=<id> - stored snapshot for one series
//   - GET /results             - all stored snapshots
//   - GET /summary             - summary of the run
//   - GET /healthz             - health check
//   - GET /metrics             - Prometheus metrics
//
// Usage:
//
//	bench -input=Hourly-train.csv -test-input=Hourly-test.csv \
//	  -frequency=hourly -model=mlp -seed=42 -output=report.json
//
// Environment variables:
//
//	INPUT, TEST_INPUT  - M4 train/test CSV files (ADAPTER=csv)
//	ADAPTER            - csv, prometheus, victoriametrics, or http
//	ADAPTER_*          - adapter settings (ADAPTER_QUERY, ADAPTER_URL, ...)
//	FREQUENCY          - yearly, quarterly, monthly, weekly, daily, hourly
//	FREQUENCIES_FILE   - YAML overrides for the frequency table
//	MODEL              - mean, linear, mlp, rnn, or byom (default: mlp)
//	SEED               - seed passed to every forecaster (default: 42)
//	QUANTILES          - error quantiles in the summary (default: p50,p90)
//	OUTPUT             - JSON report path ("-" for stdout)
//	STORAGE            - memory or redis (default: memory)
//	PUSHGATEWAY_URL    - push run metrics after the run
//	LISTEN             - results API address (empty: exit after the run)
//	GRPC_LISTEN        - gRPC health address
//	LOG_LEVEL          - debug, info, warn, error (default: info)
//	LOG_FORMAT         - text, json (default: text)
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/m4bench/cmd/bench/config"
	"github.com/HatiCode/m4bench/cmd/bench/logger"
	"github.com/HatiCode/m4bench/cmd/bench/metrics"
	"github.com/HatiCode/m4bench/cmd/bench/models"
	"github.com/HatiCode/m4bench/cmd/bench/router"
	"github.com/HatiCode/m4bench/cmd/bench/store"
	"github.com/HatiCode/m4bench/pkg/adapters"
	"github.com/HatiCode/m4bench/pkg/dataset"
	"github.com/HatiCode/m4bench/pkg/httpx"
	"github.com/HatiCode/m4bench/pkg/pipeline"
	"github.com/HatiCode/m4bench/pkg/storage"
	benchtls "github.com/HatiCode/m4bench/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting m4bench",
		"version", version,
		"adapter", cfg.Adapter,
		"model", cfg.Model,
		"frequency", cfg.Frequency,
		"seed", cfg.Seed,
	)

	freq, err := loadFrequency(cfg)
	if err != nil {
		log.Error("invalid frequency", "error", err)
		os.Exit(1)
	}

	source, err := newSource(cfg)
	if err != nil {
		log.Error("failed to create series source", "error", err)
		os.Exit(1)
	}

	factory, err := models.New(cfg, log)
	if err != nil {
		log.Error("failed to create forecaster", "error", err)
		os.Exit(1)
	}

	results, err := store.New(cfg, log)
	if err != nil {
		log.Error("failed to create result store", "error", err)
		os.Exit(1)
	}
	if closer, ok := results.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	m := metrics.New()
	p := pipeline.New(factory, pipeline.Config{
		Seed:         cfg.Seed,
		FailFast:     cfg.FailFast,
		AlignHoldout: cfg.AlignHoldout,
		Observer:     m,
	}, log)

	bench := NewBench(source, p, results, m, Options{
		Frequency: freq,
		Series:    cfg.Series,
		Limit:     cfg.Limit,
		Model:     cfg.Model,
		Quantiles: cfg.Quantiles,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID, report, runErr := bench.Run(ctx)
	if runErr != nil {
		log.Error("benchmark failed", "run_id", runID, "error", runErr)
	}

	if report != nil && cfg.Output != "" {
		if err := writeOutput(bench, cfg.Output, runID, report); err != nil {
			log.Error("failed to write report", "output", cfg.Output, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := m.Push(pushCtx, cfg.PushgatewayURL, runID); err != nil {
			log.Error("failed to push metrics", "url", cfg.PushgatewayURL, "error", err)
		}
		cancel()
	}

	if cfg.Listen == "" || ctx.Err() != nil {
		if runErr != nil {
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, bench, results, m, log); err != nil {
		log.Error("serve failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func loadFrequency(cfg *config.Config) (dataset.Frequency, error) {
	table := dataset.DefaultTable()
	if cfg.FrequenciesFile != "" {
		var err error
		if table, err = dataset.LoadTable(cfg.FrequenciesFile); err != nil {
			return dataset.Frequency{}, err
		}
	}
	return table.Lookup(cfg.Frequency)
}

func newSource(cfg *config.Config) (Source, error) {
	if cfg.Adapter == "csv" {
		return csvSource{train: cfg.Input, test: cfg.TestInput}, nil
	}

	adapter, err := adapters.New(cfg.Adapter, cfg.AdapterConfig, cfg.Step)
	if err != nil {
		return nil, err
	}
	if cfg.TLS.Enabled {
		client, err := httpx.NewClient(cfg.TLS, 30*time.Second)
		if err != nil {
			return nil, err
		}
		adapters.SetHTTPClient(adapter, client)
	}
	return adapterSource{adapter: adapter, id: cfg.SeriesID, window: cfg.Window}, nil
}

func writeOutput(b *Bench, path, runID string, report *pipeline.Report) error {
	if path == "-" {
		return b.WriteReport(os.Stdout, runID, report)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := b.WriteReport(f, runID, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serve exposes the results over HTTP, and gRPC health when configured,
// until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, b *Bench, results storage.Store, m *metrics.Metrics, log *slog.Logger) error {
	var healthCheck func(context.Context) error
	if pinger, ok := results.(interface{ Ping(context.Context) error }); ok {
		healthCheck = pinger.Ping
	}

	mux := router.SetupRoutes(router.Deps{
		Store:   results,
		Summary: b.Summary,
		Health:  healthCheck,
		Metrics: m.Handler(),
		Logger:  log,
	})
	httpServer := httpx.NewServer(cfg.Listen, mux, log)

	serverErr := make(chan error, 2)
	go func() {
		if cfg.TLS.Enabled {
			tlsConfig, err := benchtls.NewServerTLSConfig(cfg.TLS)
			if err != nil {
				serverErr <- err
				return
			}
			httpServer.SetTLSConfig(tlsConfig)
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErr <- httpServer.Start()
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			return errors.Join(err, httpServer.Stop(10*time.Second))
		}
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		go func() {
			log.Info("grpc health server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				serverErr <- err
			}
		}()
		defer func() {
			healthServer.Shutdown()
			log.Info("shutting down grpc server")
			grpcServer.GracefulStop()
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err = <-serverErr:
	}

	if stopErr := httpServer.Stop(10 * time.Second); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	return err
}
