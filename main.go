// Librarian is a census engine for scratch-off lottery games: it captures
// the provider's prizes-remaining page, validates the snapshot against a
// statistical baseline, and reconciles it into an append-only registry.
package main

import (
	"fmt"
	"os"

	"librarian/cmd"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
