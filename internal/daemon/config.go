// Package daemon wires the settlement engine into a long-running process:
// TOML configuration, the SQLite store, the application services, the HTTP
// API and the cron-driven settlement sweep.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from ~/.merit/config.toml.
type Config struct {
	API        APIConfig        `toml:"api"`
	Store      StoreConfig      `toml:"store"`
	Settlement SettlementConfig `toml:"settlement"`
	Limits     LimitsConfig     `toml:"limits"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Path string `toml:"path"` // empty = ~/.merit/merit.db
}

// SettlementConfig controls reward release timing. Durations are strings in
// Go syntax ("72h", "15m").
type SettlementConfig struct {
	TrustDelay    string `toml:"trust_delay"`
	SweepInterval string `toml:"sweep_interval"`
}

// LimitsConfig controls the commitment rate limiter and the referral join
// window.
type LimitsConfig struct {
	CommitmentWindow string `toml:"commitment_window"`
	CommitmentMax    int    `toml:"commitment_max"`
	JoinWindow       string `toml:"join_window"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8372,
			Metrics: true,
		},
		Store: StoreConfig{
			Path: "",
		},
		Settlement: SettlementConfig{
			TrustDelay:    "72h",
			SweepInterval: "1m",
		},
		Limits: LimitsConfig{
			CommitmentWindow: "720h", // 30 days
			CommitmentMax:    5,
			JoinWindow:       "30m",
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults. A missing file
// is not an error; the defaults apply. Empty path means the standard
// location under the merit home directory.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = filepath.Join(HomeDir(), "config.toml")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// HomeDir returns the merit home directory (~/.merit), honoring MERIT_HOME.
func HomeDir() string {
	if dir := os.Getenv("MERIT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".merit"
	}
	return filepath.Join(home, ".merit")
}

// StorePath resolves the SQLite file location.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(HomeDir(), "merit.db")
}

// ListenAddr returns the host:port the API binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// parseDuration parses a duration string, falling back to def when the
// string is empty or malformed.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// TrustDelay returns the parsed completion → unlock delay.
func (c Config) TrustDelay() time.Duration {
	return parseDuration(c.Settlement.TrustDelay, 72*time.Hour)
}

// SweepInterval returns the parsed sweep cadence.
func (c Config) SweepInterval() time.Duration {
	return parseDuration(c.Settlement.SweepInterval, time.Minute)
}

// CommitmentWindow returns the parsed rate-limit window.
func (c Config) CommitmentWindow() time.Duration {
	return parseDuration(c.Limits.CommitmentWindow, 30*24*time.Hour)
}

// JoinWindow returns the parsed referral join window.
func (c Config) JoinWindow() time.Duration {
	return parseDuration(c.Limits.JoinWindow, 30*time.Minute)
}
