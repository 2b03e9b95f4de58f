package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"librarian/internal/config"
	"librarian/internal/infrastructure/sqlite"
	"librarian/internal/log"
	"librarian/internal/tracing"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the census on a fixed interval",
	Long: `Run censuses periodically until interrupted. The first run starts
immediately; later runs fire on the interval. A failed run is logged and the
daemon waits for the next tick rather than exiting.

Config changes are picked up without a restart: edits to the config file
apply from the next run onward.

Example:
  librarian daemon                  # Every 6 hours
  librarian daemon --interval 1h    # Every hour`,
	RunE: runDaemon,
}

var daemonInterval time.Duration

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 6*time.Hour,
		"time between census runs")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if daemonInterval < time.Minute {
		return fmt.Errorf("interval %s is below the 1m minimum", daemonInterval)
	}

	cleanup, err := initLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	store := sqlite.NewStore(db, cfg.Census.PulseCapacity)
	defer func() { _ = store.Close() }()

	// Hot-reload config edits; the next run picks them up.
	var cfgMu sync.RWMutex
	viper.OnConfigChange(func(e fsnotify.Event) {
		var fresh config.Config
		if err := viper.Unmarshal(&fresh); err != nil {
			log.ErrorErr(log.CatConfig, "config reload failed", err, "file", e.Name)
			return
		}
		if err := config.Validate(fresh); err != nil {
			log.ErrorErr(log.CatConfig, "reloaded config rejected", err, "file", e.Name)
			return
		}
		cfgMu.Lock()
		cfg = fresh
		cfgMu.Unlock()
		log.SetMinLevel(log.ParseLevel(fresh.LogLevel))
		log.Info(log.CatConfig, "config reloaded", "file", e.Name)
	})
	viper.WatchConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	log.Info(log.CatDaemon, "daemon starting", "interval", daemonInterval.String())

	ticker := time.NewTicker(daemonInterval)
	defer ticker.Stop()

	runOnce := func() {
		cfgMu.RLock()
		current := cfg
		cfgMu.RUnlock()

		runner, err := buildRunner(store, current, tp.Tracer())
		if err != nil {
			log.ErrorErr(log.CatDaemon, "runner construction failed", err)
			return
		}
		defer runner.Close()

		result, err := runner.RunOnce(ctx)
		if err != nil {
			log.ErrorErr(log.CatDaemon, "census run failed", err,
				"run_id", result.RunID, "attempts", result.Attempts, "reason", result.Reason)
			return
		}
		log.Info(log.CatDaemon, "census run complete",
			"run_id", result.RunID, "version", result.Version,
			"games", result.GameCount, "checksum", result.Checksum)
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatDaemon, "daemon stopping")
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
