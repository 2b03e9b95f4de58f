// Package config provides configuration types, defaults, and persistence for librarian.
package config

import (
	"fmt"
	"time"

	"librarian/internal/tracing"
)

// CensusConfig holds the thresholds that gate snapshot acceptance and
// drive the lifecycle state machine.
type CensusConfig struct {
	// SafetyThreshold is the hard floor on observed game count. Snapshots
	// below it are rejected before any statistics are consulted.
	SafetyThreshold int `mapstructure:"safety_threshold"`

	// PulseCapacity bounds the statistical history; the oldest pulse is
	// evicted when a new one is appended beyond capacity.
	PulseCapacity int `mapstructure:"pulse_capacity"`

	// AnomalyZ is the z-score above which a run metric is rejected as a
	// statistical anomaly.
	AnomalyZ float64 `mapstructure:"anomaly_z"`

	// MinBaseline is the minimum number of historical pulses required
	// before the anomaly check applies.
	MinBaseline int `mapstructure:"min_baseline"`

	// ChecksumTolerance is the maximum relative drop in total wealth
	// allowed between the committed and proposed registry states.
	ChecksumTolerance float64 `mapstructure:"checksum_tolerance"`

	// MissingStrikes is the number of consecutive absent runs after which
	// a game is retired.
	MissingStrikes int `mapstructure:"missing_strikes"`
}

// RetryConfig controls the census retry loop.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// SensorConfig controls snapshot acquisition.
type SensorConfig struct {
	// Provider selects the lottery provider (e.g. "NC").
	Provider string `mapstructure:"provider"`

	// EvidenceDir is where captured HTML and screenshots are written.
	EvidenceDir string `mapstructure:"evidence_dir"`

	// SettleMin/SettleMax bound the jitter wait after page load.
	SettleMin time.Duration `mapstructure:"settle_min"`
	SettleMax time.Duration `mapstructure:"settle_max"`

	// DeepDiveLimit caps detail-page probes per run.
	DeepDiveLimit int `mapstructure:"deep_dive_limit"`

	// ProbeCacheTTL is how long a detail-page result is memoized.
	ProbeCacheTTL time.Duration `mapstructure:"probe_cache_ttl"`

	// BrowserURL is the WebSocket URL of an external Chrome instance.
	// Empty launches a local headless Chrome.
	BrowserURL string `mapstructure:"browser_url"`
}

// VaultConfig controls evidence and mirror publication.
// An empty BaseURL disables the vault entirely.
type VaultConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// Config holds all configuration options for librarian.
type Config struct {
	DBPath   string         `mapstructure:"db_path"`
	LogPath  string         `mapstructure:"log_path"`
	LogLevel string         `mapstructure:"log_level"`
	Census   CensusConfig   `mapstructure:"census"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Sensor   SensorConfig   `mapstructure:"sensor"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// Defaults returns the configuration used when no config file exists.
// The census thresholds mirror the values the registry has been run with
// in production: a floor of 40 games, 3-sigma anomaly gate, 25% wealth
// drop tolerance, and retirement after 3 missed runs.
func Defaults() Config {
	return Config{
		DBPath:   "librarian.db",
		LogPath:  "",
		LogLevel: "info",
		Census: CensusConfig{
			SafetyThreshold:   40,
			PulseCapacity:     200,
			AnomalyZ:          3.0,
			MinBaseline:       5,
			ChecksumTolerance: 0.25,
			MissingStrikes:    3,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffBase: 30 * time.Second,
			BackoffMax:  10 * time.Minute,
		},
		Sensor: SensorConfig{
			Provider:      "NC",
			EvidenceDir:   "evidence",
			SettleMin:     3 * time.Second,
			SettleMax:     7 * time.Second,
			DeepDiveLimit: 5,
			ProbeCacheTTL: 12 * time.Hour,
		},
		Vault:   VaultConfig{},
		Tracing: tracing.DefaultConfig(),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func Validate(cfg Config) error {
	if cfg.Census.SafetyThreshold < 1 {
		return fmt.Errorf("census.safety_threshold must be at least 1, got %d", cfg.Census.SafetyThreshold)
	}
	if cfg.Census.PulseCapacity < cfg.Census.MinBaseline {
		return fmt.Errorf("census.pulse_capacity (%d) must be at least census.min_baseline (%d)",
			cfg.Census.PulseCapacity, cfg.Census.MinBaseline)
	}
	if cfg.Census.AnomalyZ <= 0 {
		return fmt.Errorf("census.anomaly_z must be positive, got %g", cfg.Census.AnomalyZ)
	}
	if cfg.Census.ChecksumTolerance < 0 || cfg.Census.ChecksumTolerance >= 1 {
		return fmt.Errorf("census.checksum_tolerance must be in [0, 1), got %g", cfg.Census.ChecksumTolerance)
	}
	if cfg.Census.MissingStrikes < 1 {
		return fmt.Errorf("census.missing_strikes must be at least 1, got %d", cfg.Census.MissingStrikes)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffBase <= 0 {
		return fmt.Errorf("retry.backoff_base must be positive, got %s", cfg.Retry.BackoffBase)
	}
	if cfg.Sensor.SettleMax < cfg.Sensor.SettleMin {
		return fmt.Errorf("sensor.settle_max (%s) must not be below sensor.settle_min (%s)",
			cfg.Sensor.SettleMax, cfg.Sensor.SettleMin)
	}
	return nil
}
