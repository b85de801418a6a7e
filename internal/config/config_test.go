package config

import (
	"testing"
	"time"
)

func TestLoadAppliesFlagsOverDefaults(t *testing.T) {
	cfg, err := Load([]string{"-poll-interval=200ms", "-simulation=false"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 200*time.Millisecond {
		t.Errorf("PollInterval = %v, want 200ms", cfg.PollInterval)
	}
	if cfg.SimulationMode {
		t.Error("SimulationMode should be false after -simulation=false")
	}
}

func TestLoadEnvOverridesPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "300")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 300*time.Millisecond {
		t.Errorf("PollInterval = %v, want 300ms", cfg.PollInterval)
	}
}

func TestDefaultSimulationModeIsTrue(t *testing.T) {
	if !Default().SimulationMode {
		t.Error("Default() should ship with SimulationMode enabled")
	}
}
