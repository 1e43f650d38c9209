package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("expected HTTPPort 3000, got %d", cfg.HTTPPort)
	}
	if cfg.ProbeInterval != 10*time.Second {
		t.Errorf("expected ProbeInterval 10s, got %v", cfg.ProbeInterval)
	}
	if cfg.DownAfterFailures != 2 {
		t.Errorf("expected DownAfterFailures 2, got %d", cfg.DownAfterFailures)
	}
	if cfg.MaxRestartsDefault != 3 {
		t.Errorf("expected MaxRestartsDefault 3, got %d", cfg.MaxRestartsDefault)
	}
	if cfg.RestartRateCap != 5 {
		t.Errorf("expected RestartRateCap 5, got %d", cfg.RestartRateCap)
	}
	if cfg.RestartRateWindow != time.Hour {
		t.Errorf("expected RestartRateWindow 1h, got %v", cfg.RestartRateWindow)
	}
	if cfg.CorrelationWindow != 60*time.Second {
		t.Errorf("expected CorrelationWindow 60s, got %v", cfg.CorrelationWindow)
	}
	if cfg.RecoveryCooldown != 300*time.Second {
		t.Errorf("expected RecoveryCooldown 300s, got %v", cfg.RecoveryCooldown)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SATO_HTTP_PORT", "9090")
	t.Setenv("SATO_PROBE_INTERVAL", "3s")
	t.Setenv("SATO_DISCOVER_DOCKER", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("expected HTTPPort 9090, got %d", cfg.HTTPPort)
	}
	if cfg.ProbeInterval != 3*time.Second {
		t.Errorf("expected ProbeInterval 3s, got %v", cfg.ProbeInterval)
	}
	if !cfg.DiscoverDocker {
		t.Error("expected DiscoverDocker true")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SATO_HTTP_PORT", "not-a-number")
	t.Setenv("SATO_CHECK_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("expected fallback HTTPPort 3000, got %d", cfg.HTTPPort)
	}
	if cfg.CheckTimeout != 5*time.Second {
		t.Errorf("expected fallback CheckTimeout 5s, got %v", cfg.CheckTimeout)
	}
}

func TestDefaultBackoffStages(t *testing.T) {
	want := []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	if len(DefaultBackoffStages) != len(want) {
		t.Fatalf("expected %d backoff stages, got %d", len(want), len(DefaultBackoffStages))
	}
	for i, d := range want {
		if DefaultBackoffStages[i] != d {
			t.Errorf("stage %d: expected %v, got %v", i, d, DefaultBackoffStages[i])
		}
	}
}
