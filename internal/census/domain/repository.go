package domain

import "librarian/internal/census/pulse"

// CommittedState is the durable view a run starts from: the last committed
// registry generation plus the pulse baseline accumulated by accepted runs.
type CommittedState struct {
	Registry *Registry
	Pulses   []pulse.Pulse
}

// Store persists committed registry generations. Implementations must make
// Commit atomic and mutually exclusive: a commit only succeeds when the
// proposed version is exactly one above the persisted head, so overlapping
// reconciliations cannot produce a lost update.
type Store interface {
	// Load returns the current committed state. A never-committed store
	// returns an empty registry at version 0 with no pulses.
	Load() (CommittedState, error)

	// Commit atomically persists a new registry generation together with
	// the pulse recorded for the run. Returns ErrVersionConflict when the
	// persisted head is not at registry.Version-1.
	Commit(registry *Registry, p pulse.Pulse) error

	// Close releases the store's resources.
	Close() error
}
