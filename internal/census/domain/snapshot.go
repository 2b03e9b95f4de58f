package domain

import (
	"context"
	"time"
)

// RawGame is one candidate record extracted from a single observation,
// before any identity has been assigned.
type RawGame struct {
	NaturalKey string
	Attributes Attributes
}

// Snapshot is the normalized output of one acquisition: an ordered list of
// raw records plus the count and byte-size signals the validator gates on.
type Snapshot struct {
	RunID       string
	ObservedAt  time.Time
	Games       []RawGame
	PayloadSize int64

	// Evidence paths captured alongside the extraction. Optional; empty
	// when a source produces no artifacts (tests, replayed snapshots).
	EvidenceHTML string
	EvidenceShot string
}

// Count returns the number of observed records.
func (s Snapshot) Count() int {
	return len(s.Games)
}

// TotalWealth sums remaining prize money across the raw observation.
func (s Snapshot) TotalWealth() int64 {
	var total int64
	for _, g := range s.Games {
		total += g.Attributes.RemainingWealth()
	}
	return total
}

// SnapshotSource acquires a fresh snapshot from an origin. One
// implementation exists per lottery provider; the validator and notary are
// source-agnostic and consume only the normalized Snapshot shape.
type SnapshotSource interface {
	Capture(ctx context.Context) (Snapshot, error)
}
