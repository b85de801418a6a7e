// signald runs the NWP publication-detection trading pipeline: schedule-
// driven object-store polling, GRIB extraction, source arbitration,
// strategy evaluation, and order execution, behind a small HTTP status
// surface. Grounded on cmd/agentd/main.go's flag parsing, signal
// handling, and /health /status /metrics endpoint shape.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/config"
	"github.com/weatheredge/nwp-signal-engine/internal/logging"
	"github.com/weatheredge/nwp-signal-engine/internal/orchestrator"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("signald: parse config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("signald: build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("signald: build orchestrator", zap.Error(err))
	}

	if cfg.DiscoveryEnabled {
		if _, err := orch.RunDiscovery(ctx); err != nil {
			logger.Error("signald: market discovery failed, continuing with no markets", zap.Error(err))
		}
	}

	go serveHTTP(cfg, orch, logger)

	if err := orch.Start(ctx); err != nil {
		logger.Fatal("signald: start orchestrator", zap.Error(err))
	}

	logger.Info("signald running",
		zap.Bool("simulation", cfg.SimulationMode),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("metrics_addr", cfg.MetricsAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("signald shutting down")
	orch.Stop()
	cancel()

	stats := orch.DataStore().GetStats()
	logger.Info("signald final stats",
		zap.Int("markets", stats.MarketCount),
		zap.Int("price_points", stats.TotalPricePoints),
		zap.Int("forecast_snapshots", stats.TotalForecastSnapshots))
}

func serveHTTP(cfg config.Config, orch *orchestrator.Orchestrator, logger *zap.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats := orch.DataStore().GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"running":            orch.IsRunning(),
			"markets":            stats.MarketCount,
			"price_points":       stats.TotalPricePoints,
			"forecast_snapshots": stats.TotalForecastSnapshots,
		})
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(orch.Metrics().Registry(), promhttp.HandlerOpts{}))
	logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
	if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
