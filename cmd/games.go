package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"librarian/internal/census/domain"
	"librarian/internal/infrastructure/sqlite"
	"librarian/internal/presentation"
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "Print the committed registry",
	Long: `Print the current committed registry generation as JSON, optionally
filtered by lifecycle state.

Example:
  librarian games                   # Full registry
  librarian games --state RETIRED   # Only retired records`,
	RunE: runGames,
}

var gamesState string

func init() {
	rootCmd.AddCommand(gamesCmd)
	gamesCmd.Flags().StringVar(&gamesState, "state", "",
		"filter by lifecycle state: ACTIVE, MISSING, or RETIRED")
}

func runGames(cmd *cobra.Command, _ []string) error {
	var filter domain.LifecycleState
	if gamesState != "" {
		filter = domain.LifecycleState(strings.ToUpper(gamesState))
		if !filter.IsValid() {
			return fmt.Errorf("unknown state %q", gamesState)
		}
	}

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

	reg := state.Registry
	if filter != "" {
		filtered := domain.NewRegistry()
		filtered.Version = reg.Version
		filtered.RunID = reg.RunID
		filtered.Checksum = reg.Checksum
		for key, g := range reg.Games {
			if g.State() == filter {
				filtered.Games[key] = g
			}
		}
		reg = filtered
	}

	out, err := presentation.RenderJSON(presentation.NewRegistryDocument(reg, time.Now()))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
