package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"librarian/internal/census/domain"
	"librarian/internal/census/pulse"
)

// gameColumns is the list of columns to select for game queries.
const gameColumns = `natural_key, identity, product_key, name, url_slug, ticket_price,
	overall_odds, prizes, state, missing_streak, first_seen_run, last_seen_run,
	first_seen_at, last_seen_at, retired_at`

// RegistryStore implements domain.Store using SQLite.
type RegistryStore struct {
	db       *sql.DB
	capacity int
}

// NewStore creates a registry store over an opened database. pulseCapacity
// bounds how many pulses are retained; older rows are trimmed on commit.
func NewStore(db *sql.DB, pulseCapacity int) *RegistryStore {
	if pulseCapacity <= 0 {
		pulseCapacity = pulse.DefaultCapacity
	}
	return &RegistryStore{db: db, capacity: pulseCapacity}
}

// Ensure RegistryStore implements domain.Store.
var _ domain.Store = (*RegistryStore)(nil)

// scanGame scans a row into a GameModel.
func scanGame(scanner interface{ Scan(...any) error }) (*GameModel, error) {
	var model GameModel
	err := scanner.Scan(
		&model.NaturalKey, &model.Identity, &model.ProductKey, &model.Name,
		&model.URLSlug, &model.TicketPrice, &model.OverallOdds, &model.Prizes,
		&model.State, &model.MissingStreak, &model.FirstSeenRun, &model.LastSeenRun,
		&model.FirstSeenAt, &model.LastSeenAt, &model.RetiredAt,
	)
	return &model, err
}

// Load returns the committed registry head, its games, and the retained
// pulse baseline. A never-committed database yields an empty registry at
// version 0.
func (s *RegistryStore) Load() (domain.CommittedState, error) {
	reg := domain.NewRegistry()

	row := s.db.QueryRow(`SELECT version, run_id, checksum FROM registry_head WHERE id = 1`)
	err := row.Scan(&reg.Version, &reg.RunID, &reg.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CommittedState{Registry: reg}, nil
	}
	if err != nil {
		return domain.CommittedState{}, fmt.Errorf("load registry head: %w", err)
	}

	rows, err := s.db.Query(`SELECT ` + gameColumns + ` FROM games`)
	if err != nil {
		return domain.CommittedState{}, fmt.Errorf("load games: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		model, err := scanGame(rows)
		if err != nil {
			return domain.CommittedState{}, fmt.Errorf("scan game row: %w", err)
		}
		g, err := model.toDomain()
		if err != nil {
			return domain.CommittedState{}, err
		}
		reg.Games[g.NaturalKey()] = g
	}
	if err := rows.Err(); err != nil {
		return domain.CommittedState{}, fmt.Errorf("iterate game rows: %w", err)
	}

	pulses, err := s.loadPulses()
	if err != nil {
		return domain.CommittedState{}, err
	}
	return domain.CommittedState{Registry: reg, Pulses: pulses}, nil
}

func (s *RegistryStore) loadPulses() ([]pulse.Pulse, error) {
	rows, err := s.db.Query(
		`SELECT run_id, observed_at, game_count, total_wealth, payload_size
		 FROM pulses ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load pulses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pulses []pulse.Pulse
	for rows.Next() {
		var p pulse.Pulse
		var observedAt int64
		if err := rows.Scan(&p.RunID, &observedAt, &p.GameCount, &p.TotalWealth, &p.PayloadSize); err != nil {
			return nil, fmt.Errorf("scan pulse row: %w", err)
		}
		p.ObservedAt = time.Unix(observedAt, 0).UTC()
		pulses = append(pulses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pulse rows: %w", err)
	}
	return pulses, nil
}

// Commit persists a registry generation atomically. The head row is
// compare-and-swapped on version: the update only applies when the persisted
// version is exactly registry.Version-1, otherwise ErrVersionConflict.
func (s *RegistryStore) Commit(reg *domain.Registry, p pulse.Pulse) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	if reg.Version == 1 {
		// First generation: the insert itself is the exclusivity check,
		// a concurrent first commit hits the id=1 primary key.
		_, err = tx.Exec(
			`INSERT INTO registry_head (id, version, run_id, checksum, committed_at)
			 VALUES (1, ?, ?, ?, ?)`,
			reg.Version, reg.RunID, reg.Checksum, now)
		if err != nil {
			return domain.ErrVersionConflict
		}
	} else {
		result, err := tx.Exec(
			`UPDATE registry_head SET version = ?, run_id = ?, checksum = ?, committed_at = ?
			 WHERE id = 1 AND version = ?`,
			reg.Version, reg.RunID, reg.Checksum, now, reg.Version-1)
		if err != nil {
			return fmt.Errorf("update registry head: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("head rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrVersionConflict
		}
	}

	// Replace the game table wholesale; the registry is the unit of commit.
	if _, err := tx.Exec(`DELETE FROM games`); err != nil {
		return fmt.Errorf("clear games: %w", err)
	}
	for _, g := range reg.Games {
		model, err := toGameModel(g)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO games (`+gameColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.NaturalKey, model.Identity, model.ProductKey, model.Name,
			model.URLSlug, model.TicketPrice, model.OverallOdds, model.Prizes,
			model.State, model.MissingStreak, model.FirstSeenRun, model.LastSeenRun,
			model.FirstSeenAt, model.LastSeenAt, model.RetiredAt,
		)
		if err != nil {
			return fmt.Errorf("insert game %s: %w", model.NaturalKey, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO pulses (run_id, observed_at, game_count, total_wealth, payload_size)
		 VALUES (?, ?, ?, ?, ?)`,
		p.RunID, p.ObservedAt.Unix(), p.GameCount, p.TotalWealth, p.PayloadSize,
	); err != nil {
		return fmt.Errorf("insert pulse: %w", err)
	}

	// Trim the baseline to capacity, oldest first.
	if _, err := tx.Exec(
		`DELETE FROM pulses WHERE id NOT IN (SELECT id FROM pulses ORDER BY id DESC LIMIT ?)`,
		s.capacity,
	); err != nil {
		return fmt.Errorf("trim pulses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *RegistryStore) Close() error {
	return s.db.Close()
}
