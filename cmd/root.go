// Package cmd wires the librarian CLI: the one-shot census run, the periodic
// daemon, and the read-only registry inspection commands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"librarian/internal/config"
	"librarian/internal/log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "librarian",
	Short:   "Scratch-off lottery census registry",
	Long: `Librarian maintains an append-only registry of scratch-off lottery games.

Each census run captures the provider's prizes-remaining page, validates the
snapshot against the statistical baseline of past runs, reconciles it through
the notary's lifecycle rules (games are born, go missing, and retire but are
never deleted), and commits the new registry generation behind an integrity
checksum gate.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/librarian/config.yaml)")
	rootCmd.PersistentFlags().String("db", "",
		"path to the registry database (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "",
		"log level: debug, info, warn, error (overrides config)")

	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("db_path", defaults.DBPath)
	viper.SetDefault("log_path", defaults.LogPath)
	viper.SetDefault("log_level", defaults.LogLevel)
	viper.SetDefault("census.safety_threshold", defaults.Census.SafetyThreshold)
	viper.SetDefault("census.pulse_capacity", defaults.Census.PulseCapacity)
	viper.SetDefault("census.anomaly_z", defaults.Census.AnomalyZ)
	viper.SetDefault("census.min_baseline", defaults.Census.MinBaseline)
	viper.SetDefault("census.checksum_tolerance", defaults.Census.ChecksumTolerance)
	viper.SetDefault("census.missing_strikes", defaults.Census.MissingStrikes)
	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.backoff_base", defaults.Retry.BackoffBase)
	viper.SetDefault("retry.backoff_max", defaults.Retry.BackoffMax)
	viper.SetDefault("sensor.provider", defaults.Sensor.Provider)
	viper.SetDefault("sensor.evidence_dir", defaults.Sensor.EvidenceDir)
	viper.SetDefault("sensor.settle_min", defaults.Sensor.SettleMin)
	viper.SetDefault("sensor.settle_max", defaults.Sensor.SettleMax)
	viper.SetDefault("sensor.deep_dive_limit", defaults.Sensor.DeepDiveLimit)
	viper.SetDefault("sensor.probe_cache_ttl", defaults.Sensor.ProbeCacheTTL)
	viper.SetDefault("sensor.browser_url", defaults.Sensor.BrowserURL)
	viper.SetDefault("vault.base_url", defaults.Vault.BaseURL)
	viper.SetDefault("vault.token", defaults.Vault.Token)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .librarian/config.yaml (current directory)
		// 2. ~/.config/librarian/config.yaml (user config)
		if _, err := os.Stat(".librarian/config.yaml"); err == nil {
			viper.SetConfigFile(".librarian/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "librarian"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .librarian/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".librarian/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// initLogging sets up the global logger from the resolved config and returns
// a cleanup function.
func initLogging() (func(), error) {
	if cfg.LogPath == "" {
		log.InitWithWriter(os.Stderr)
		log.SetMinLevel(log.ParseLevel(cfg.LogLevel))
		return func() {}, nil
	}
	cleanup, err := log.Init(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.LogLevel))
	return cleanup, nil
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
