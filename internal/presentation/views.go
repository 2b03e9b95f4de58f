// Package presentation converts domain entities into the JSON shapes the CLI
// prints and the vault publishes. Views are plain serializable structs;
// nothing here mutates domain state.
package presentation

import (
	"encoding/json"
	"sort"
	"time"

	"librarian/internal/census/domain"
)

// PrizeView is one prize tier in a rendered game.
type PrizeView struct {
	Value     int64   `json:"value"`
	Odds      float64 `json:"odds"`
	Remaining int     `json:"remaining"`
	RawValue  string  `json:"raw_value,omitempty"`
	RawOdds   string  `json:"raw_odds,omitempty"`
	RawTotal  string  `json:"raw_total,omitempty"`
}

// GameView is the rendered form of one registry record.
type GameView struct {
	Identity        string      `json:"identity"`
	NaturalKey      string      `json:"natural_key"`
	ProductKey      string      `json:"product_key,omitempty"`
	Name            string      `json:"name"`
	URLSlug         string      `json:"url_slug,omitempty"`
	TicketPrice     string      `json:"ticket_price,omitempty"`
	OverallOdds     string      `json:"overall_odds,omitempty"`
	State           string      `json:"state"`
	MissingStreak   int         `json:"missing_streak,omitempty"`
	RemainingWealth int64       `json:"remaining_wealth"`
	FirstSeenRun    string      `json:"first_seen_run"`
	LastSeenRun     string      `json:"last_seen_run"`
	FirstSeenAt     time.Time   `json:"first_seen_at"`
	LastSeenAt      time.Time   `json:"last_seen_at"`
	RetiredAt       *time.Time  `json:"retired_at,omitempty"`
	Prizes          []PrizeView `json:"prizes,omitempty"`
}

// NewGameView renders a domain game.
func NewGameView(g *domain.Game) GameView {
	attrs := g.Attributes()
	prizes := make([]PrizeView, len(attrs.Prizes))
	for i, p := range attrs.Prizes {
		prizes[i] = PrizeView{
			Value:     p.Value,
			Odds:      p.Odds,
			Remaining: p.Remaining,
			RawValue:  p.RawValue,
			RawOdds:   p.RawOdds,
			RawTotal:  p.RawTotal,
		}
	}
	return GameView{
		Identity:        g.Identity(),
		NaturalKey:      g.NaturalKey(),
		ProductKey:      g.ProductKey(),
		Name:            attrs.Name,
		URLSlug:         attrs.URLSlug,
		TicketPrice:     attrs.TicketPrice,
		OverallOdds:     attrs.OverallOdds,
		State:           string(g.State()),
		MissingStreak:   g.MissingStreak(),
		RemainingWealth: g.RemainingWealth(),
		FirstSeenRun:    g.FirstSeenRun(),
		LastSeenRun:     g.LastSeenRun(),
		FirstSeenAt:     g.FirstSeenAt(),
		LastSeenAt:      g.LastSeenAt(),
		RetiredAt:       g.RetiredAt(),
		Prizes:          prizes,
	}
}

// RegistryDocument is the full rendered registry: the shape committed to the
// vault mirror and printed by the games command.
type RegistryDocument struct {
	Version     int64      `json:"version"`
	RunID       string     `json:"run_id"`
	Checksum    int64      `json:"checksum"`
	GeneratedAt time.Time  `json:"generated_at"`
	GameCount   int        `json:"game_count"`
	ActiveCount int        `json:"active_count"`
	Games       []GameView `json:"games"`
}

// NewRegistryDocument renders a registry, games ordered by natural key.
func NewRegistryDocument(reg *domain.Registry, now time.Time) RegistryDocument {
	games := make([]GameView, 0, reg.Len())
	for _, g := range reg.Games {
		games = append(games, NewGameView(g))
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].NaturalKey < games[j].NaturalKey
	})
	return RegistryDocument{
		Version:     reg.Version,
		RunID:       reg.RunID,
		Checksum:    reg.Checksum,
		GeneratedAt: now,
		GameCount:   reg.Len(),
		ActiveCount: reg.ActiveCount(),
		Games:       games,
	}
}

// RenderJSON marshals a view with stable indentation for terminal output.
func RenderJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
