package domain

// Registry is one generation of the committed census: a mapping from natural
// key to Game plus the version and integrity checksum under which it was
// committed. The registry is an explicit value passed into and returned from
// the notary; nothing mutates a committed generation in place.
type Registry struct {
	// Version is the monotonically increasing commit generation. The store
	// persists a new generation only when its version is exactly one above
	// the committed one (compare-and-swap).
	Version int64

	// RunID identifies the run that committed this generation.
	RunID string

	// Checksum is the total remaining wealth across ACTIVE games at commit
	// time, used as the integrity gate for the next run.
	Checksum int64

	// Games maps natural key to record. Every identity across the map is
	// unique.
	Games map[string]*Game
}

// NewRegistry returns an empty, uncommitted registry (version 0).
func NewRegistry() *Registry {
	return &Registry{
		Version: 0,
		Games:   make(map[string]*Game),
	}
}

// Clone returns a deep copy of the registry, suitable for building a
// proposed next generation without touching the committed one.
func (r *Registry) Clone() *Registry {
	games := make(map[string]*Game, len(r.Games))
	for k, g := range r.Games {
		games[k] = g.Clone()
	}
	return &Registry{
		Version:  r.Version,
		RunID:    r.RunID,
		Checksum: r.Checksum,
		Games:    games,
	}
}

// TotalWealth sums the remaining prize money across all ACTIVE games.
// This is the integrity checksum for a proposed registry state.
func (r *Registry) TotalWealth() int64 {
	var total int64
	for _, g := range r.Games {
		if g.State() == StateActive {
			total += g.RemainingWealth()
		}
	}
	return total
}

// ActiveCount returns the number of ACTIVE games.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, g := range r.Games {
		if g.State() == StateActive {
			n++
		}
	}
	return n
}

// Len returns the total number of tracked records, retired included.
func (r *Registry) Len() int {
	return len(r.Games)
}
