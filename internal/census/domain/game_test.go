package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testAttrs(name string) Attributes {
	return Attributes{
		Name:    name,
		URLSlug: Slugify(name),
		Prizes: []PrizeTier{
			{Value: 1000000, Odds: 1469394, Remaining: 2, RawValue: "$1,000,000", RawOdds: "1,469,394", RawTotal: "2"},
			{Value: 100, Odds: 120, Remaining: 4500, RawValue: "$100", RawOdds: "120", RawTotal: "4,500"},
		},
	}
}

func TestNewGame(t *testing.T) {
	now := time.Now()
	g := NewGame("996", testAttrs("Carolina Riches"), "run_1", now)

	require.NotEmpty(t, g.Identity())
	require.Equal(t, "996", g.NaturalKey())
	require.Equal(t, "carolina-riches", g.ProductKey())
	require.Equal(t, StateActive, g.State())
	require.Equal(t, 0, g.MissingStreak())
	require.Equal(t, "run_1", g.FirstSeenRun())
	require.Equal(t, "run_1", g.LastSeenRun())
	require.Nil(t, g.RetiredAt())
}

func TestNewGame_IdentitiesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		g := NewGame("996", testAttrs("Carolina Riches"), "run_1", time.Now())
		require.False(t, seen[g.Identity()], "identity issued twice")
		seen[g.Identity()] = true
	}
}

func TestGame_Observe_KeepsIdentity(t *testing.T) {
	g := NewGame("996", testAttrs("Carolina Riches"), "run_1", time.Now())
	identity := g.Identity()

	g.MarkMissed(3, time.Now())
	require.Equal(t, StateMissing, g.State())

	g.Observe(testAttrs("Carolina Riches"), "run_3", time.Now())
	require.Equal(t, identity, g.Identity(), "identity must survive revival")
	require.Equal(t, StateActive, g.State())
	require.Equal(t, 0, g.MissingStreak())
	require.Equal(t, "run_3", g.LastSeenRun())
	require.Equal(t, "run_1", g.FirstSeenRun())
}

func TestGame_Observe_AttributeBackfill(t *testing.T) {
	attrs := testAttrs("Carolina Riches")
	attrs.OverallOdds = "" // unknown at first sighting
	g := NewGame("996", attrs, "run_1", time.Now())

	// Later run learns the odds but fails to extract the ticket price.
	update := Attributes{OverallOdds: "3.85"}
	g.Observe(update, "run_2", time.Now())

	require.Equal(t, "3.85", g.Attributes().OverallOdds, "newly present attribute is filled in")
	require.Equal(t, "Carolina Riches", g.Attributes().Name, "absent attribute retains last known good")
	require.Len(t, g.Attributes().Prizes, 2, "absent prize table is not erased")
}

func TestGame_Observe_NonEmptyOverwrites(t *testing.T) {
	g := NewGame("996", testAttrs("Carolina Riches"), "run_1", time.Now())

	update := testAttrs("Carolina Riches")
	update.Prizes = []PrizeTier{{Value: 1000000, Odds: 1469394, Remaining: 1}}
	g.Observe(update, "run_2", time.Now())

	require.Len(t, g.Attributes().Prizes, 1, "fresh prize table replaces old")
	require.Equal(t, 1, g.Attributes().Prizes[0].Remaining)
}

func TestGame_MarkMissed_Progression(t *testing.T) {
	now := time.Now()
	g := NewGame("996", testAttrs("Carolina Riches"), "run_1", now)

	g.MarkMissed(3, now)
	require.Equal(t, StateMissing, g.State())
	require.Equal(t, 1, g.MissingStreak())

	g.MarkMissed(3, now)
	require.Equal(t, StateMissing, g.State())
	require.Equal(t, 2, g.MissingStreak())

	g.MarkMissed(3, now)
	require.Equal(t, StateRetired, g.State())
	require.Equal(t, 3, g.MissingStreak())
	require.NotNil(t, g.RetiredAt())
}

func TestGame_RetirementIsTerminal(t *testing.T) {
	now := time.Now()
	g := NewGame("996", testAttrs("Carolina Riches"), "run_1", now)
	for i := 0; i < 3; i++ {
		g.MarkMissed(3, now)
	}
	require.Equal(t, StateRetired, g.State())

	g.Observe(testAttrs("Carolina Riches"), "run_9", now)
	require.Equal(t, StateRetired, g.State(), "observation must not revive a retired record")

	g.MarkMissed(3, now)
	require.Equal(t, 3, g.MissingStreak(), "retired streak is frozen")
}

func TestGame_Clone_IsDeep(t *testing.T) {
	g := NewGame("996", testAttrs("Carolina Riches"), "run_1", time.Now())
	cp := g.Clone()

	cp.Observe(Attributes{Prizes: []PrizeTier{{Value: 5, Remaining: 5}}}, "run_2", time.Now())
	cp.Attributes().Prizes[0].Remaining = 99

	require.Len(t, g.Attributes().Prizes, 2, "original prize table untouched")
	require.Equal(t, "run_1", g.LastSeenRun())
}

func TestAttributes_RemainingWealth(t *testing.T) {
	attrs := testAttrs("Carolina Riches")
	// 1,000,000 * 2 + 100 * 4,500
	require.Equal(t, int64(2450000), attrs.RemainingWealth())
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Carolina Riches", "carolina-riches"},
		{"$1,000,000 Spectacular!", "1000000-spectacular"},
		{"  Mega_Bucks  ", "mega-bucks"},
		{"100X The Cash", "100x-the-cash"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Slugify(tt.in), "Slugify(%q)", tt.in)
	}
}

func TestLifecycleState(t *testing.T) {
	require.True(t, StateActive.IsValid())
	require.True(t, StateMissing.IsValid())
	require.True(t, StateRetired.IsValid())
	require.False(t, LifecycleState("ZOMBIE").IsValid())

	require.True(t, StateRetired.Terminal())
	require.False(t, StateActive.Terminal())
	require.False(t, StateMissing.Terminal())
}
