// Package sqlite persists committed registry generations. The registry head
// row carries the generation version; commits compare-and-swap on it inside
// a transaction so two overlapping reconciliations cannot both win.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Schema is the registry database schema. Applied idempotently at open.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_head (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	checksum INTEGER NOT NULL,
	committed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
	natural_key TEXT PRIMARY KEY,
	identity TEXT NOT NULL UNIQUE,
	product_key TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	url_slug TEXT NOT NULL DEFAULT '',
	ticket_price TEXT NOT NULL DEFAULT '',
	overall_odds TEXT NOT NULL DEFAULT '',
	prizes TEXT NOT NULL DEFAULT '[]',
	state TEXT NOT NULL,
	missing_streak INTEGER NOT NULL DEFAULT 0,
	first_seen_run TEXT NOT NULL,
	last_seen_run TEXT NOT NULL,
	first_seen_at INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL,
	retired_at INTEGER
);

CREATE TABLE IF NOT EXISTS pulses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	observed_at INTEGER NOT NULL,
	game_count INTEGER NOT NULL,
	total_wealth INTEGER NOT NULL,
	payload_size INTEGER NOT NULL
);
`

// Open opens (creating if needed) the registry database at path and applies
// the schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
