// Package config loads the typed configuration struct every component
// reads its tunables from, resolving flags first and environment
// variables as overrides, in the same style as the teacher's own
// cmd/agentd flag parsing, extended with env support for container
// deployment.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable knob named in spec §6, plus the ambient
// knobs added in SPEC_FULL.md §10.
type Config struct {
	// Detector
	PollInterval           time.Duration
	MaxDetectionDuration    time.Duration
	ObjectStoreRegion       string
	ObjectStoreAnonymous    bool

	// State
	PriceHistoryWindow time.Duration
	PriceRetention     time.Duration
	ForecastRetention  time.Duration

	// Executor
	TradeCooldown              time.Duration
	MinEdgeThreshold           float64
	MinEdgeThresholdSpeed      float64
	CertaintySigmaThreshold    float64
	GuaranteedPositionMultiplier float64
	SignificantForecastChange  float64
	KellyFractionGuaranteed    float64
	KellyFractionHigh          float64
	KellyFractionMedium        float64
	KellyFractionLow           float64

	// Bayesian / strategy toggles
	ModelBiasCorrectionEnabled    bool
	ModelHorizonWeightingEnabled  bool
	ModelEnsembleSpreadMultiplier float64
	SpeedArbRequireCrossing       bool
	SpeedArbMinCrossingDistanceF  float64

	// Latency
	LatencySlowTraceThreshold time.Duration
	LatencyStatsWindowSize    int

	// Simulation
	SimulationMode bool

	// Ambient
	LogLevel  string
	LogFormat string
	HTTPAddr  string
	MetricsAddr string

	// Live exchange credentials (unused in simulation mode)
	ExchangeBaseURL    string
	ExchangeWSURL      string
	ExchangeChainID    int64
	ExchangeAPIKey     string
	ExchangeAPISecret  string
	ExchangePassphrase string
	ExchangeWalletKey  string
	ExchangeNegRisk    bool

	// Market discovery
	DiscoveryEnabled  bool
	DiscoveryBaseURL  string
}

// Default returns the configuration with every knob at the default
// named in spec §6.
func Default() Config {
	return Config{
		PollInterval:         150 * time.Millisecond,
		MaxDetectionDuration: 45 * time.Minute,

		ObjectStoreRegion:    "us-east-1",
		ObjectStoreAnonymous: true,

		PriceHistoryWindow: 60 * time.Second,
		PriceRetention:     60 * time.Minute,
		ForecastRetention:  24 * time.Hour,

		TradeCooldown:                60 * time.Second,
		MinEdgeThreshold:             0.10,
		MinEdgeThresholdSpeed:        0.02,
		CertaintySigmaThreshold:      3.0,
		GuaranteedPositionMultiplier: 2.0,
		SignificantForecastChange:    1.0,
		KellyFractionGuaranteed:      1.0,
		KellyFractionHigh:            0.5,
		KellyFractionMedium:          0.25,
		KellyFractionLow:             0.1,

		ModelBiasCorrectionEnabled:    true,
		ModelHorizonWeightingEnabled:  true,
		ModelEnsembleSpreadMultiplier: 0.5,
		SpeedArbRequireCrossing:       true,
		SpeedArbMinCrossingDistanceF:  0.5,

		LatencySlowTraceThreshold: 2 * time.Second,
		LatencyStatsWindowSize:    500,

		SimulationMode: true,

		LogLevel:    "info",
		LogFormat:   "console",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		ExchangeBaseURL: "https://clob.polymarket.com",
		ExchangeChainID: 137,

		DiscoveryEnabled: false,
		DiscoveryBaseURL: "https://gamma-api.polymarket.com",
	}
}

// Load resolves Config from command-line flags, then applies environment
// variables on top, so a set environment variable wins over a flag for
// the same knob — mirroring the teacher's cmd/agentd flag set, extended
// for container deployment.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("signald", flag.ContinueOnError)
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "object-store poll interval")
	fs.BoolVar(&cfg.SimulationMode, "simulation", cfg.SimulationMode, "run with the in-memory simulation exchange")
	fs.Float64Var(&cfg.MinEdgeThreshold, "min-edge", cfg.MinEdgeThreshold, "minimum edge threshold (stored in Config.MinEdgeThreshold; no strategy applies it)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console, json)")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "health/status HTTP listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus metrics listen address")
	fs.BoolVar(&cfg.DiscoveryEnabled, "discover", cfg.DiscoveryEnabled, "run Gamma-style market discovery once at startup")
	fs.StringVar(&cfg.DiscoveryBaseURL, "discovery-base-url", cfg.DiscoveryBaseURL, "Gamma-style market discovery API base URL")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("POLL_INTERVAL_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("SIMULATION_MODE"); ok {
		cfg.SimulationMode = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_BASE_URL"); ok {
		cfg.ExchangeBaseURL = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_WS_URL"); ok {
		cfg.ExchangeWSURL = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_API_KEY"); ok {
		cfg.ExchangeAPIKey = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_API_SECRET"); ok {
		cfg.ExchangeAPISecret = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_WALLET_KEY"); ok {
		cfg.ExchangeWalletKey = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_PASSPHRASE"); ok {
		cfg.ExchangePassphrase = v
	}
	if v, ok := os.LookupEnv("EXCHANGE_CHAIN_ID"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ExchangeChainID = id
		}
	}
	if v, ok := os.LookupEnv("EXCHANGE_NEG_RISK"); ok {
		cfg.ExchangeNegRisk = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("DISCOVERY_ENABLED"); ok {
		cfg.DiscoveryEnabled = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("DISCOVERY_BASE_URL"); ok {
		cfg.DiscoveryBaseURL = v
	}
}
