package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultFileConfig mirrors Config with yaml tags for writing the starter file.
// Durations are written as strings so the file stays human-editable.
type defaultFileConfig struct {
	DBPath   string                `yaml:"db_path"`
	LogLevel string                `yaml:"log_level"`
	Census   map[string]any        `yaml:"census"`
	Retry    map[string]string     `yaml:"retry"`
	Sensor   map[string]any        `yaml:"sensor"`
	Vault    map[string]string     `yaml:"vault"`
	Tracing  map[string]any        `yaml:"tracing"`
}

// WriteDefaultConfig writes a starter config file with the default values.
// The write is atomic (temp file + rename) so a crashed process never leaves
// a half-written config behind.
func WriteDefaultConfig(path string) error {
	defaults := Defaults()

	out := defaultFileConfig{
		DBPath:   defaults.DBPath,
		LogLevel: defaults.LogLevel,
		Census: map[string]any{
			"safety_threshold":   defaults.Census.SafetyThreshold,
			"pulse_capacity":     defaults.Census.PulseCapacity,
			"anomaly_z":          defaults.Census.AnomalyZ,
			"min_baseline":       defaults.Census.MinBaseline,
			"checksum_tolerance": defaults.Census.ChecksumTolerance,
			"missing_strikes":    defaults.Census.MissingStrikes,
		},
		Retry: map[string]string{
			"max_attempts": fmt.Sprintf("%d", defaults.Retry.MaxAttempts),
			"backoff_base": defaults.Retry.BackoffBase.String(),
			"backoff_max":  defaults.Retry.BackoffMax.String(),
		},
		Sensor: map[string]any{
			"provider":        defaults.Sensor.Provider,
			"evidence_dir":    defaults.Sensor.EvidenceDir,
			"settle_min":      defaults.Sensor.SettleMin.String(),
			"settle_max":      defaults.Sensor.SettleMax.String(),
			"deep_dive_limit": defaults.Sensor.DeepDiveLimit,
			"probe_cache_ttl": defaults.Sensor.ProbeCacheTTL.String(),
		},
		Vault: map[string]string{
			"base_url": "",
			"token":    "",
		},
		Tracing: map[string]any{
			"enabled":       defaults.Tracing.Enabled,
			"exporter":      defaults.Tracing.Exporter,
			"otlp_endpoint": defaults.Tracing.OTLPEndpoint,
			"sample_rate":   defaults.Tracing.SampleRate,
			"service_name":  defaults.Tracing.ServiceName,
		},
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".librarian.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
