package store

import (
	"database/sql"
	"fmt"
)

// schema is applied on open. All statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          INTEGER PRIMARY KEY,  -- telegram chat id
	login       TEXT,
	language    TEXT    NOT NULL DEFAULT 'en',
	notify      INTEGER NOT NULL DEFAULT 0,
	left_notice INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS peers (
	login     TEXT PRIMARY KEY,
	campus_id INTEGER,
	cursus_id INTEGER
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	peer_login TEXT    NOT NULL,
	PRIMARY KEY (user_id, peer_login)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_peer ON subscriptions(peer_login);

CREATE TABLE IF NOT EXISTS campuses (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	time_zone TEXT NOT NULL
);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
