package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"librarian/internal/census/domain"
)

// GameModel represents the database row for the games table. Time values are
// Unix timestamps; the prize table is JSON encoded.
type GameModel struct {
	NaturalKey    string
	Identity      string
	ProductKey    string
	Name          string
	URLSlug       string
	TicketPrice   string
	OverallOdds   string
	Prizes        string // JSON encoded []domain.PrizeTier
	State         string
	MissingStreak int
	FirstSeenRun  string
	LastSeenRun   string
	FirstSeenAt   int64
	LastSeenAt    int64
	RetiredAt     *int64 // nullable
}

// toGameModel converts a domain Game entity to a database GameModel.
func toGameModel(g *domain.Game) (*GameModel, error) {
	attrs := g.Attributes()
	prizes := attrs.Prizes
	if prizes == nil {
		prizes = []domain.PrizeTier{}
	}
	prizesJSON, err := json.Marshal(prizes)
	if err != nil {
		return nil, fmt.Errorf("marshal prizes for %s: %w", g.NaturalKey(), err)
	}

	m := &GameModel{
		NaturalKey:    g.NaturalKey(),
		Identity:      g.Identity(),
		ProductKey:    g.ProductKey(),
		Name:          attrs.Name,
		URLSlug:       attrs.URLSlug,
		TicketPrice:   attrs.TicketPrice,
		OverallOdds:   attrs.OverallOdds,
		Prizes:        string(prizesJSON),
		State:         string(g.State()),
		MissingStreak: g.MissingStreak(),
		FirstSeenRun:  g.FirstSeenRun(),
		LastSeenRun:   g.LastSeenRun(),
		FirstSeenAt:   g.FirstSeenAt().Unix(),
		LastSeenAt:    g.LastSeenAt().Unix(),
	}
	if r := g.RetiredAt(); r != nil {
		ts := r.Unix()
		m.RetiredAt = &ts
	}
	return m, nil
}

// toDomain converts a GameModel back to a domain Game entity.
func (m *GameModel) toDomain() (*domain.Game, error) {
	var prizes []domain.PrizeTier
	if m.Prizes != "" {
		if err := json.Unmarshal([]byte(m.Prizes), &prizes); err != nil {
			return nil, fmt.Errorf("unmarshal prizes for %s: %w", m.NaturalKey, err)
		}
	}

	state := domain.LifecycleState(m.State)
	if !state.IsValid() {
		return nil, fmt.Errorf("game %s has unknown state %q", m.NaturalKey, m.State)
	}

	var retiredAt *time.Time
	if m.RetiredAt != nil {
		t := time.Unix(*m.RetiredAt, 0).UTC()
		retiredAt = &t
	}

	return domain.ReconstituteGame(
		m.Identity, m.NaturalKey, m.ProductKey,
		domain.Attributes{
			Name:        m.Name,
			URLSlug:     m.URLSlug,
			TicketPrice: m.TicketPrice,
			OverallOdds: m.OverallOdds,
			Prizes:      prizes,
		},
		state,
		m.MissingStreak,
		m.FirstSeenRun, m.LastSeenRun,
		time.Unix(m.FirstSeenAt, 0).UTC(), time.Unix(m.LastSeenAt, 0).UTC(),
		retiredAt,
	), nil
}
