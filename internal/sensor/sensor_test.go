package sensor

import (
	"regexp"
	"testing"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/require"

	"librarian/internal/census/domain"
)

func TestNewRunID(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 15, 0, 0, time.UTC)
	id := NewRunID(now)

	require.Regexp(t, regexp.MustCompile(`^run_20260301_0615_[0-9a-f]{4}$`), id)
	require.NotEqual(t, id, NewRunID(now), "same-minute runs stay distinct")
}

func TestProviderRegistry(t *testing.T) {
	p, err := Get("NC")
	require.NoError(t, err)
	require.Equal(t, "NC", p.Code())
	require.Equal(t, 40, p.SafetyFloor())

	_, err = Get("ZZ")
	require.Error(t, err)

	require.Contains(t, List(), "NC")
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.defaults()
	require.Equal(t, "evidence", o.EvidenceDir)
	require.Equal(t, 3*time.Second, o.SettleMin)
	require.Equal(t, o.SettleMin, o.SettleMax)
	require.Equal(t, 5, o.DeepDiveLimit)
	require.Equal(t, 12*time.Hour, o.ProbeCacheTTL)
}

func healInput(keys ...string) []domain.RawGame {
	games := make([]domain.RawGame, len(keys))
	for i, k := range keys {
		games[i] = domain.RawGame{NaturalKey: k, Attributes: domain.Attributes{URLSlug: "slug-" + k}}
	}
	return games
}

func TestHealOdds_BackfillsUpToLimit(t *testing.T) {
	p := &ncProvider{}
	games := healInput("901", "902", "903", "904")

	var probed []string
	probe := func(url string) string {
		probed = append(probed, url)
		return "3.85"
	}

	healOdds(games, p, probe, 2, cache.New(time.Hour, time.Hour), nil)

	require.Len(t, probed, 2, "deep dives are capped per capture")
	require.Equal(t, "3.85", games[0].Attributes.OverallOdds)
	require.Equal(t, "3.85", games[1].Attributes.OverallOdds)
	require.Empty(t, games[2].Attributes.OverallOdds)
	require.Empty(t, games[3].Attributes.OverallOdds)
}

func TestHealOdds_SkipsGamesThatHaveOdds(t *testing.T) {
	p := &ncProvider{}
	games := healInput("901", "902")
	games[0].Attributes.OverallOdds = "4.20"

	var probed []string
	probe := func(url string) string {
		probed = append(probed, url)
		return "3.85"
	}

	healOdds(games, p, probe, 5, cache.New(time.Hour, time.Hour), nil)

	require.Equal(t, []string{"https://nclottery.com/scratch-off/902/slug-902"}, probed)
	require.Equal(t, "4.20", games[0].Attributes.OverallOdds)
}

func TestHealOdds_CacheHitsDoNotCountAgainstLimit(t *testing.T) {
	p := &ncProvider{}
	probes := cache.New(time.Hour, time.Hour)
	probes.Set("901", "3.85", cache.DefaultExpiration)
	probes.Set("902", "4.10", cache.DefaultExpiration)

	games := healInput("901", "902", "903")
	var live int
	probe := func(string) string {
		live++
		return "5.00"
	}

	healOdds(games, p, probe, 1, probes, nil)

	require.Equal(t, 1, live)
	require.Equal(t, "3.85", games[0].Attributes.OverallOdds)
	require.Equal(t, "4.10", games[1].Attributes.OverallOdds)
	require.Equal(t, "5.00", games[2].Attributes.OverallOdds)
}

func TestHealOdds_SuccessfulProbeIsMemoized(t *testing.T) {
	p := &ncProvider{}
	probes := cache.New(time.Hour, time.Hour)

	first := healInput("901")
	healOdds(first, p, func(string) string { return "3.85" }, 5, probes, nil)
	require.Equal(t, "3.85", first[0].Attributes.OverallOdds)

	// Second capture: no live probe needed.
	second := healInput("901")
	healOdds(second, p, func(string) string {
		t.Fatal("unexpected live probe")
		return ""
	}, 5, probes, nil)
	require.Equal(t, "3.85", second[0].Attributes.OverallOdds)
}

func TestHealOdds_EmptyProbeResultNotCached(t *testing.T) {
	p := &ncProvider{}
	probes := cache.New(time.Hour, time.Hour)

	games := healInput("901")
	healOdds(games, p, func(string) string { return "" }, 5, probes, nil)
	require.Empty(t, games[0].Attributes.OverallOdds)

	_, hit := probes.Get("901")
	require.False(t, hit, "a miss stays probeable next capture")
}
