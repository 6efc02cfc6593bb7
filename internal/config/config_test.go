package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `
portfolio:
  coins: ["BTC", "ETH"]
  max_positions: 3
safety:
  dry_run: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Portfolio.Coins) != 2 || cfg.Portfolio.Coins[0] != "BTC" {
		t.Errorf("Coins = %v, want [BTC ETH]", cfg.Portfolio.Coins)
	}
	if cfg.Portfolio.MaxPositions != 3 {
		t.Errorf("MaxPositions = %d, want 3", cfg.Portfolio.MaxPositions)
	}
	// Fields the file didn't override should keep Default()'s values.
	if cfg.Strategy.ChandelierMult != 3.0 {
		t.Errorf("ChandelierMult = %v, want default 3.0", cfg.Strategy.ChandelierMult)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "safety:\n  dry_run: false\n")

	t.Setenv("BITHUMBOT_EXCHANGE_CONNECT_KEY", "env-key")
	t.Setenv("BITHUMBOT_EXCHANGE_SECRET_KEY", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Exchange.ConnectKey != "env-key" || cfg.Exchange.SecretKey != "env-secret" {
		t.Errorf("credentials = %q/%q, want env-key/env-secret", cfg.Exchange.ConnectKey, cfg.Exchange.SecretKey)
	}
}

func TestValidateRequiresCredentialsWhenLive(t *testing.T) {
	cfg := Default()
	cfg.Safety.DryRun = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject a live config with no credentials")
	}

	cfg.Exchange.ConnectKey = "k"
	cfg.Exchange.SecretKey = "s"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with credentials = %v, want nil", err)
	}
}

func TestValidateRequiresAtLeastOneCoin(t *testing.T) {
	cfg := Default()
	cfg.Portfolio.Coins = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an empty coin list")
	}
}

func TestDefaultPassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() should be valid (dry_run=true): %v", err)
	}
}

func TestSchedulerConfigDurationHelpers(t *testing.T) {
	s := SchedulerConfig{CyclePeriodSec: 900, CallDeadlineSec: 15, StepDeadlineSec: 30}
	if s.CyclePeriod().Seconds() != 900 {
		t.Errorf("CyclePeriod = %v, want 900s", s.CyclePeriod())
	}
	if s.CallDeadline().Seconds() != 15 {
		t.Errorf("CallDeadline = %v, want 15s", s.CallDeadline())
	}
	if s.StepDeadline().Seconds() != 30 {
		t.Errorf("StepDeadline = %v, want 30s", s.StepDeadline())
	}
}
