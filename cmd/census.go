package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/census/notary"
	"librarian/internal/census/orchestrate"
	"librarian/internal/census/validate"
	"librarian/internal/config"
	"librarian/internal/infrastructure/sqlite"
	"librarian/internal/presentation"
	"librarian/internal/sensor"
	"librarian/internal/tracing"
	"librarian/internal/vault"
)

var censusCmd = &cobra.Command{
	Use:   "census",
	Short: "Run one census against the configured provider",
	Long: `Capture a snapshot from the provider's site, validate it, reconcile it into
the registry, and commit the new generation. Prints the run result as JSON.
Exits non-zero when the run is rejected.`,
	RunE: runCensus,
}

func init() {
	rootCmd.AddCommand(censusCmd)
}

// buildRunner assembles the census pipeline from the resolved config.
func buildRunner(store *sqlite.RegistryStore, c config.Config, tracer trace.Tracer) (*orchestrate.Runner, error) {
	provider, err := sensor.Get(c.Sensor.Provider)
	if err != nil {
		return nil, err
	}

	source := sensor.New(provider, sensor.Options{
		EvidenceDir:   c.Sensor.EvidenceDir,
		SettleMin:     c.Sensor.SettleMin,
		SettleMax:     c.Sensor.SettleMax,
		DeepDiveLimit: c.Sensor.DeepDiveLimit,
		ProbeCacheTTL: c.Sensor.ProbeCacheTTL,
		BrowserURL:    c.Sensor.BrowserURL,
	})

	safety := c.Census.SafetyThreshold
	if floor := provider.SafetyFloor(); floor > safety {
		safety = floor
	}

	opts := []orchestrate.Option{orchestrate.WithTracer(tracer)}
	if vaultClient := vault.New(c.Vault.BaseURL, c.Vault.Token); vaultClient.Enabled() {
		opts = append(opts, orchestrate.WithVault(vaultClient))
	}

	return orchestrate.NewRunner(
		source,
		store,
		validate.New(safety, c.Census.AnomalyZ, c.Census.MinBaseline),
		notary.New(c.Census.MissingStrikes, c.Census.ChecksumTolerance),
		orchestrate.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BackoffBase: c.Retry.BackoffBase,
			BackoffMax:  c.Retry.BackoffMax,
		},
		c.Census.PulseCapacity,
		opts...,
	), nil
}

func runCensus(cmd *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
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

	runner, err := buildRunner(store, cfg, tp.Tracer())
	if err != nil {
		return err
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = tp.Shutdown(ctx) }()

	result, runErr := runner.RunOnce(ctx)

	out, err := presentation.RenderJSON(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return runErr
}
