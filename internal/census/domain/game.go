// Package domain provides the pure domain layer for the census registry with
// no infrastructure dependencies.
//
// It defines the Game entity with its identity and lifecycle state machine,
// the Registry value that holds one committed generation of the census, the
// snapshot types consumed from the sensor, and the rejection taxonomy shared
// by the validator and the notary.
package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LifecycleState represents the presence lifecycle of a game.
type LifecycleState string

const (
	// StateActive indicates the game was observed in the most recent run.
	StateActive LifecycleState = "ACTIVE"

	// StateMissing indicates the game was expected but absent in one or
	// more consecutive runs.
	StateMissing LifecycleState = "MISSING"

	// StateRetired indicates the game has been confirmed removed.
	// Retirement is terminal: a retired record is never revived.
	StateRetired LifecycleState = "RETIRED"
)

// String returns the string representation of the state.
func (s LifecycleState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized lifecycle state.
func (s LifecycleState) IsValid() bool {
	switch s {
	case StateActive, StateMissing, StateRetired:
		return true
	default:
		return false
	}
}

// Terminal returns true for states that permit no further transitions.
func (s LifecycleState) Terminal() bool {
	return s == StateRetired
}

// PrizeTier is one row of a game's prize table. Parsed numeric values are
// kept alongside the raw strings from the source page for the audit trail.
type PrizeTier struct {
	Value     int64   `json:"value"`     // prize value in whole dollars
	Odds      float64 `json:"odds"`      // odds denominator ("1 in N")
	Remaining int     `json:"remaining"` // prizes still unclaimed
	RawValue  string  `json:"raw_value"`
	RawOdds   string  `json:"raw_odds"`
	RawTotal  string  `json:"raw_total"`
}

// Attributes holds the semantic fields of a game observation. Any field may
// be legitimately absent on a given observation and backfilled later.
type Attributes struct {
	Name        string
	URLSlug     string
	TicketPrice string
	OverallOdds string
	Prizes      []PrizeTier
}

// merge folds a new observation into existing attributes. New non-empty
// values overwrite; values absent in the new observation are retained, so a
// field once learned is never erased by a run that fails to extract it.
func (a Attributes) merge(o Attributes) Attributes {
	out := a
	if o.Name != "" {
		out.Name = o.Name
	}
	if o.URLSlug != "" {
		out.URLSlug = o.URLSlug
	}
	if o.TicketPrice != "" {
		out.TicketPrice = o.TicketPrice
	}
	if o.OverallOdds != "" {
		out.OverallOdds = o.OverallOdds
	}
	if len(o.Prizes) > 0 {
		out.Prizes = o.Prizes
	}
	return out
}

// RemainingWealth returns the total unclaimed prize money described by the
// attributes' prize table.
func (a Attributes) RemainingWealth() int64 {
	var total int64
	for _, p := range a.Prizes {
		total += p.Value * int64(p.Remaining)
	}
	return total
}

var slugStrip = regexp.MustCompile(`[^\w\s-]`)
var slugSpace = regexp.MustCompile(`[\s_]+`)

// Slugify normalizes a game name into a stable product key.
func Slugify(text string) string {
	text = strings.ToLower(text)
	text = slugStrip.ReplaceAllString(text, "")
	text = slugSpace.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}

// Game is the domain entity for one tracked scratch-off listing. All fields
// are unexported to enforce encapsulation; use the constructor and getter
// methods to access data.
type Game struct {
	identity      string
	naturalKey    string
	productKey    string
	attrs         Attributes
	state         LifecycleState
	missingStreak int

	firstSeenRun string
	lastSeenRun  string

	firstSeenAt time.Time
	lastSeenAt  time.Time
	retiredAt   *time.Time
}

// NewGame creates a freshly observed Game with a newly issued identity.
// The identity is a random UUID; it is assigned exactly once and never
// regenerated for the record's lifetime.
func NewGame(naturalKey string, attrs Attributes, runID string, now time.Time) *Game {
	return &Game{
		identity:      uuid.NewString(),
		naturalKey:    naturalKey,
		productKey:    Slugify(attrs.Name),
		attrs:         attrs,
		state:         StateActive,
		missingStreak: 0,
		firstSeenRun:  runID,
		lastSeenRun:   runID,
		firstSeenAt:   now,
		lastSeenAt:    now,
	}
}

// ReconstituteGame creates a Game from persisted data.
func ReconstituteGame(
	identity, naturalKey, productKey string,
	attrs Attributes,
	state LifecycleState,
	missingStreak int,
	firstSeenRun, lastSeenRun string,
	firstSeenAt, lastSeenAt time.Time,
	retiredAt *time.Time,
) *Game {
	return &Game{
		identity:      identity,
		naturalKey:    naturalKey,
		productKey:    productKey,
		attrs:         attrs,
		state:         state,
		missingStreak: missingStreak,
		firstSeenRun:  firstSeenRun,
		lastSeenRun:   lastSeenRun,
		firstSeenAt:   firstSeenAt,
		lastSeenAt:    lastSeenAt,
		retiredAt:     retiredAt,
	}
}

// Identity returns the permanent registry-issued identifier.
func (g *Game) Identity() string { return g.identity }

// NaturalKey returns the source system's own identifier for the game.
func (g *Game) NaturalKey() string { return g.naturalKey }

// ProductKey returns the slugified product key derived from the name.
func (g *Game) ProductKey() string { return g.productKey }

// Attributes returns the game's current attribute set.
func (g *Game) Attributes() Attributes { return g.attrs }

// State returns the current lifecycle state.
func (g *Game) State() LifecycleState { return g.state }

// MissingStreak returns the count of consecutive runs the game was absent.
func (g *Game) MissingStreak() int { return g.missingStreak }

// FirstSeenRun returns the run in which the game was first observed.
func (g *Game) FirstSeenRun() string { return g.firstSeenRun }

// LastSeenRun returns the most recent run in which the game was observed.
func (g *Game) LastSeenRun() string { return g.lastSeenRun }

// FirstSeenAt returns when the game was first observed.
func (g *Game) FirstSeenAt() time.Time { return g.firstSeenAt }

// LastSeenAt returns when the game was last observed.
func (g *Game) LastSeenAt() time.Time { return g.lastSeenAt }

// RetiredAt returns when the game was retired, or nil.
func (g *Game) RetiredAt() *time.Time { return g.retiredAt }

// RemainingWealth returns the game's total unclaimed prize money.
func (g *Game) RemainingWealth() int64 { return g.attrs.RemainingWealth() }

// Observe records a fresh sighting of the game: attributes are merged with
// backfill semantics, the missing streak resets, and the game returns to
// ACTIVE. Observing a retired game is a programming error; callers must
// issue a fresh identity instead (see Registry semantics in the notary).
func (g *Game) Observe(attrs Attributes, runID string, now time.Time) {
	if g.state.Terminal() {
		return
	}
	g.attrs = g.attrs.merge(attrs)
	if g.productKey == "" && g.attrs.Name != "" {
		g.productKey = Slugify(g.attrs.Name)
	}
	g.state = StateActive
	g.missingStreak = 0
	g.lastSeenRun = runID
	g.lastSeenAt = now
}

// MarkMissed records that the game was expected but absent from a run.
// An ACTIVE game becomes MISSING with a streak of 1; a MISSING game's streak
// increments. Once the streak reaches strikes the game is retired.
// Retired games are untouched.
func (g *Game) MarkMissed(strikes int, now time.Time) {
	switch g.state {
	case StateActive:
		g.state = StateMissing
		g.missingStreak = 1
	case StateMissing:
		g.missingStreak++
	default:
		return
	}
	if g.missingStreak >= strikes {
		g.state = StateRetired
		g.retiredAt = &now
	}
}

// Clone returns a deep copy of the game. Prize tiers are copied so a
// proposed registry can be mutated without touching the committed one.
func (g *Game) Clone() *Game {
	cp := *g
	if g.retiredAt != nil {
		t := *g.retiredAt
		cp.retiredAt = &t
	}
	if len(g.attrs.Prizes) > 0 {
		prizes := make([]PrizeTier, len(g.attrs.Prizes))
		copy(prizes, g.attrs.Prizes)
		cp.attrs.Prizes = prizes
	}
	return &cp
}
