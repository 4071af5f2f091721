package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8372 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8372)
	}
	if !cfg.API.Metrics {
		t.Error("API.Metrics should be on by default")
	}
	if cfg.TrustDelay() != 72*time.Hour {
		t.Errorf("TrustDelay() = %v, want 72h", cfg.TrustDelay())
	}
	if cfg.SweepInterval() != time.Minute {
		t.Errorf("SweepInterval() = %v, want 1m", cfg.SweepInterval())
	}
	if cfg.CommitmentWindow() != 30*24*time.Hour {
		t.Errorf("CommitmentWindow() = %v, want 720h", cfg.CommitmentWindow())
	}
	if cfg.Limits.CommitmentMax != 5 {
		t.Errorf("Limits.CommitmentMax = %d, want 5", cfg.Limits.CommitmentMax)
	}
	if cfg.JoinWindow() != 30*time.Minute {
		t.Errorf("JoinWindow() = %v, want 30m", cfg.JoinWindow())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[api]
host = "0.0.0.0"
port = 9000

[store]
path = "/var/lib/merit/merit.db"

[settlement]
trust_delay = "24h"
sweep_interval = "30s"

[limits]
commitment_max = 10
join_window = "1h"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.ListenAddr() != "0.0.0.0:9000" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	if cfg.StorePath() != "/var/lib/merit/merit.db" {
		t.Errorf("StorePath() = %q", cfg.StorePath())
	}
	if cfg.TrustDelay() != 24*time.Hour {
		t.Errorf("TrustDelay() = %v, want 24h", cfg.TrustDelay())
	}
	if cfg.SweepInterval() != 30*time.Second {
		t.Errorf("SweepInterval() = %v, want 30s", cfg.SweepInterval())
	}
	// Unset keys keep their defaults.
	if cfg.Limits.CommitmentWindow != "720h" {
		t.Errorf("CommitmentWindow kept = %q, want default", cfg.Limits.CommitmentWindow)
	}
	if cfg.Limits.CommitmentMax != 10 {
		t.Errorf("CommitmentMax = %d, want 10", cfg.Limits.CommitmentMax)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"72h", 72 * time.Hour},
		{"", time.Hour},       // empty falls back
		{"banana", time.Hour}, // malformed falls back
		{"-5m", time.Hour},    // non-positive falls back
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Hour); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
