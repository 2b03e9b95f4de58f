package presentation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"librarian/internal/census/domain"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func TestNewGameView(t *testing.T) {
	attrs := domain.Attributes{
		Name:        "Carolina Riches",
		URLSlug:     "carolina-riches",
		TicketPrice: "$20",
		OverallOdds: "3.85",
		Prizes: []domain.PrizeTier{
			{Value: 1_000_000, Odds: 1_469_394, Remaining: 2, RawValue: "$1,000,000"},
		},
	}
	g := domain.NewGame("996", attrs, "run_1", t0)

	v := NewGameView(g)
	require.Equal(t, g.Identity(), v.Identity)
	require.Equal(t, "996", v.NaturalKey)
	require.Equal(t, "carolina-riches", v.ProductKey)
	require.Equal(t, "ACTIVE", v.State)
	require.Equal(t, int64(2_000_000), v.RemainingWealth)
	require.Len(t, v.Prizes, 1)
	require.Equal(t, "$1,000,000", v.Prizes[0].RawValue)
	require.Nil(t, v.RetiredAt)
}

func TestNewRegistryDocument_SortedByNaturalKey(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Version = 7
	reg.RunID = "run_7"
	for _, key := range []string{"903", "901", "902"} {
		reg.Games[key] = domain.NewGame(key, domain.Attributes{Name: "G" + key}, "run_7", t0)
	}
	reg.Checksum = reg.TotalWealth()

	doc := NewRegistryDocument(reg, t0)
	require.Equal(t, int64(7), doc.Version)
	require.Equal(t, 3, doc.GameCount)
	require.Equal(t, 3, doc.ActiveCount)
	require.Equal(t, "901", doc.Games[0].NaturalKey)
	require.Equal(t, "902", doc.Games[1].NaturalKey)
	require.Equal(t, "903", doc.Games[2].NaturalKey)
}

func TestRenderJSON_RoundTrips(t *testing.T) {
	reg := domain.NewRegistry()
	reg.Version = 1
	reg.RunID = "run_1"
	reg.Games["996"] = domain.NewGame("996", domain.Attributes{Name: "Carolina Riches"}, "run_1", t0)

	out, err := RenderJSON(NewRegistryDocument(reg, t0))
	require.NoError(t, err)

	var doc RegistryDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Equal(t, "run_1", doc.RunID)
	require.Equal(t, "Carolina Riches", doc.Games[0].Name)
}

func TestGameView_OmitsEmptyOptionalFields(t *testing.T) {
	g := domain.NewGame("996", domain.Attributes{Name: "Bare"}, "run_1", t0)

	data, err := json.Marshal(NewGameView(g))
	require.NoError(t, err)
	require.NotContains(t, string(data), "ticket_price")
	require.NotContains(t, string(data), "retired_at")
	require.NotContains(t, string(data), "missing_streak")
}
