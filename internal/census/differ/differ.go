// Package differ derives change reports between registry generations: a
// short content fingerprint for cheap equality checks, a structured delta
// for run summaries, and a line diff of the canonical form for humans.
package differ

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"librarian/internal/census/domain"
)

// fingerprintLen is the number of hex characters retained from the digest.
const fingerprintLen = 16

// canonicalGame is the digest-relevant projection of one record. Timestamps
// and run IDs are deliberately excluded so two runs observing identical
// content fingerprint identically.
type canonicalGame struct {
	NaturalKey string             `json:"natural_key"`
	State      string             `json:"state"`
	Name       string             `json:"name"`
	Prizes     []domain.PrizeTier `json:"prizes,omitempty"`
}

func canonicalize(reg *domain.Registry) []canonicalGame {
	games := make([]canonicalGame, 0, reg.Len())
	for _, g := range reg.Games {
		attrs := g.Attributes()
		games = append(games, canonicalGame{
			NaturalKey: g.NaturalKey(),
			State:      string(g.State()),
			Name:       attrs.Name,
			Prizes:     attrs.Prizes,
		})
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].NaturalKey < games[j].NaturalKey
	})
	return games
}

// Fingerprint digests the registry's canonical content form. Two registries
// with the same records, states, and prize tables fingerprint identically
// regardless of when or in what order they were observed.
func Fingerprint(reg *domain.Registry) string {
	data, err := json.Marshal(canonicalize(reg))
	if err != nil {
		// canonicalGame contains only marshalable fields
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// GameRef identifies one record in a delta.
type GameRef struct {
	NaturalKey string `json:"natural_key"`
	Name       string `json:"name"`
}

// WealthChange records one game whose remaining prize money moved.
type WealthChange struct {
	NaturalKey string `json:"natural_key"`
	Name       string `json:"name"`
	Before     int64  `json:"before"`
	After      int64  `json:"after"`
}

// Delta is the structured difference between two registry generations.
type Delta struct {
	Added         []GameRef      `json:"added,omitempty"`
	Retired       []GameRef      `json:"retired,omitempty"`
	Revived       []GameRef      `json:"revived,omitempty"`
	WealthChanged []WealthChange `json:"wealth_changed,omitempty"`
	WealthBefore  int64          `json:"wealth_before"`
	WealthAfter   int64          `json:"wealth_after"`
}

// Empty reports whether the generations differ in any tracked way.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Retired) == 0 && len(d.Revived) == 0 &&
		len(d.WealthChanged) == 0 && d.WealthBefore == d.WealthAfter
}

// Summary renders the delta as a one-line report for logs.
func (d Delta) Summary() string {
	if d.Empty() {
		return "no changes"
	}
	parts := []string{
		fmt.Sprintf("%d added", len(d.Added)),
		fmt.Sprintf("%d retired", len(d.Retired)),
	}
	if len(d.Revived) > 0 {
		parts = append(parts, fmt.Sprintf("%d revived", len(d.Revived)))
	}
	parts = append(parts,
		fmt.Sprintf("%d wealth moves", len(d.WealthChanged)),
		fmt.Sprintf("wealth %d -> %d", d.WealthBefore, d.WealthAfter),
	)
	return strings.Join(parts, ", ")
}

// Compute derives the structured delta from before to after. A record counts
// as added when its identity is new to the registry, so a retired key that
// was reissued shows up as both retired (old identity stays) and added.
func Compute(before, after *domain.Registry) Delta {
	d := Delta{
		WealthBefore: before.TotalWealth(),
		WealthAfter:  after.TotalWealth(),
	}

	prior := make(map[string]*domain.Game, before.Len())
	for _, g := range before.Games {
		prior[g.Identity()] = g
	}

	for _, g := range after.Games {
		old, existed := prior[g.Identity()]
		if !existed {
			d.Added = append(d.Added, ref(g))
			continue
		}

		switch {
		case old.State() != domain.StateRetired && g.State() == domain.StateRetired:
			d.Retired = append(d.Retired, ref(g))
		case old.State() == domain.StateMissing && g.State() == domain.StateActive:
			d.Revived = append(d.Revived, ref(g))
		}

		ow, nw := old.Attributes().RemainingWealth(), g.Attributes().RemainingWealth()
		if ow != nw {
			d.WealthChanged = append(d.WealthChanged, WealthChange{
				NaturalKey: g.NaturalKey(),
				Name:       g.Attributes().Name,
				Before:     ow,
				After:      nw,
			})
		}
	}

	sortRefs(d.Added)
	sortRefs(d.Retired)
	sortRefs(d.Revived)
	sort.Slice(d.WealthChanged, func(i, j int) bool {
		return d.WealthChanged[i].NaturalKey < d.WealthChanged[j].NaturalKey
	})
	return d
}

func ref(g *domain.Game) GameRef {
	return GameRef{NaturalKey: g.NaturalKey(), Name: g.Attributes().Name}
}

func sortRefs(refs []GameRef) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].NaturalKey < refs[j].NaturalKey
	})
}

// TextDiff renders a line-oriented diff of the canonical forms, one record
// per line, with -/+ prefixes. Returns the empty string when nothing moved.
func TextDiff(before, after *domain.Registry) string {
	a := canonicalLines(before)
	b := canonicalLines(after)
	if a == b {
		return ""
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	var sb strings.Builder
	for _, diff := range diffs {
		prefix := "  "
		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimRight(diff.Text, "\n"), "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func canonicalLines(reg *domain.Registry) string {
	var sb strings.Builder
	for _, g := range canonicalize(reg) {
		data, _ := json.Marshal(g)
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}
