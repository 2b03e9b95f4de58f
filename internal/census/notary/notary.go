// Package notary performs the reconciliation of a validated snapshot against
// the committed registry. It is the only writer of lifecycle transitions and
// the final integrity gate before a generation may be persisted.
package notary

import (
	"time"

	"librarian/internal/census/domain"
	"librarian/internal/census/pulse"
)

// Notary reconciles snapshots into registry generations.
type Notary struct {
	// MissingStrikes is the number of consecutive absent runs before a
	// record is retired.
	MissingStrikes int

	// ChecksumTolerance is the maximum fractional drop in total remaining
	// wealth a single run may introduce. A proposed registry whose wealth
	// fell further than this below the committed checksum is refused.
	// Increases are never gated; jackpots reset upward legitimately.
	ChecksumTolerance float64
}

// New returns a notary with the given tuning. Non-positive values fall back
// to defaults.
func New(missingStrikes int, checksumTolerance float64) *Notary {
	n := &Notary{
		MissingStrikes:    missingStrikes,
		ChecksumTolerance: checksumTolerance,
	}
	if n.MissingStrikes <= 0 {
		n.MissingStrikes = 3
	}
	if n.ChecksumTolerance <= 0 {
		n.ChecksumTolerance = 0.25
	}
	return n
}

// Reconcile merges a snapshot into the prior committed registry, producing
// the proposed next generation and the pulse that would be recorded on
// commit. The prior registry is never mutated. A checksum violation returns
// a *domain.Rejection and no proposed registry.
//
// Every record present in the snapshot is observed (born if new, revived if
// missing, replaced if retired); every live record absent from the snapshot
// accrues a missing strike. Retired records are inert.
func (n *Notary) Reconcile(snap domain.Snapshot, prior *domain.Registry, now time.Time) (*domain.Registry, pulse.Pulse, error) {
	next := prior.Clone()
	next.Version = prior.Version + 1
	next.RunID = snap.RunID

	seen := make(map[string]bool, len(snap.Games))
	for _, raw := range snap.Games {
		seen[raw.NaturalKey] = true

		existing, ok := next.Games[raw.NaturalKey]
		switch {
		case !ok:
			next.Games[raw.NaturalKey] = domain.NewGame(raw.NaturalKey, raw.Attributes, snap.RunID, now)
		case existing.State().Terminal():
			// The natural key of a retired record has been reissued.
			// The old identity stays dead; this is a new entity.
			next.Games[raw.NaturalKey] = domain.NewGame(raw.NaturalKey, raw.Attributes, snap.RunID, now)
		default:
			existing.Observe(raw.Attributes, snap.RunID, now)
		}
	}

	for key, g := range next.Games {
		if seen[key] || g.State().Terminal() {
			continue
		}
		g.MarkMissed(n.MissingStrikes, now)
	}

	proposed := next.TotalWealth()
	if prior.Checksum > 0 {
		floor := float64(prior.Checksum) * (1 - n.ChecksumTolerance)
		if float64(proposed) < floor {
			return nil, pulse.Pulse{}, domain.Reject(domain.ReasonIntegrityViolation,
				"proposed wealth %d fell below %.0f (committed %d, tolerance %.0f%%)",
				proposed, floor, prior.Checksum, n.ChecksumTolerance*100)
		}
	}
	next.Checksum = proposed

	p := pulse.Pulse{
		RunID:       snap.RunID,
		ObservedAt:  snap.ObservedAt,
		GameCount:   snap.Count(),
		TotalWealth: snap.TotalWealth(),
		PayloadSize: snap.PayloadSize,
	}
	return next, p, nil
}
