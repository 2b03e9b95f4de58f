package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"librarian/internal/census/pulse"
	"librarian/internal/infrastructure/sqlite"
	"librarian/internal/presentation"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the pulse baseline of accepted runs",
	Long: `Print the retained pulse history (one summary record per accepted run)
together with the baseline statistics the validator gates against.

Example:
  librarian history              # Full retained history
  librarian history --limit 10   # Ten most recent runs`,
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0,
		"only the N most recent runs (0 = all retained)")
}

// historyReport is the JSON shape the history command prints.
type historyReport struct {
	Runs  []pulse.Pulse          `json:"runs"`
	Stats map[string]pulse.Stats `json:"stats"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	store := sqlite.NewStore(db, cfg.Census.PulseCapacity)
	defer func() { _ = store.Close() }()

	state, err := store.Load()
	if err != nil {
		return err
	}

	history := pulse.NewHistory(cfg.Census.PulseCapacity, state.Pulses...)
	runs := history.Entries()
	if historyLimit > 0 && len(runs) > historyLimit {
		runs = runs[len(runs)-historyLimit:]
	}

	report := historyReport{
		Runs: runs,
		Stats: map[string]pulse.Stats{
			string(pulse.MetricCount):   history.Stats(pulse.MetricCount),
			string(pulse.MetricWealth):  history.Stats(pulse.MetricWealth),
			string(pulse.MetricPayload): history.Stats(pulse.MetricPayload),
		},
	}

	out, err := presentation.RenderJSON(report)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
