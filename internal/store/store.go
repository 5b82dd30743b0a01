// Package store is the persistence collaborator: users (watchers),
// observed peers, subscriptions, and the campus catalog, backed by
// SQLite. The notifier only needs paged reads plus watcher removal; the
// rest is simple get/upsert used by the bot's command surface.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const busyTimeoutMillis = 5000

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path.
// WAL mode, a 5 s busy timeout, and a single connection (SQLite
// serialises writes). The schema is migrated automatically.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// User is a bot user identified by their Telegram chat ID.
type User struct {
	ID         int64
	Login      string
	Language   string
	Notify     bool
	LeftNotice bool
}

// Watcher is a user subscribed to a subject's transitions.
type Watcher struct {
	ID         int64
	LeftNotice bool
}

// Observed is one subject with its current watcher set.
type Observed struct {
	Login    string
	Watchers []Watcher
}

// NotifyGroup is one (campus, cursus) pair with the users who opted into
// event announcements.
type NotifyGroup struct {
	CampusID   int
	CursusID   int
	TimeZone   string
	WatcherIDs []int64
}

// Campus mirrors the upstream campus catalog entry.
type Campus struct {
	ID       int
	Name     string
	TimeZone string
}

// UpsertUser inserts or replaces a user.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, login, language, notify, left_notice, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login = excluded.login,
			language = excluded.language,
			notify = excluded.notify,
			left_notice = excluded.left_notice`,
		u.ID, u.Login, u.Language, u.Notify, u.LeftNotice,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: upsert user %d: %w", u.ID, err)
	}
	return nil
}

// GetUser returns a user by chat ID, or (nil, nil) when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, login, language, notify, left_notice FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Login, &u.Language, &u.Notify, &u.LeftNotice)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %d: %w", id, err)
	}
	return &u, nil
}

// UpsertPeer inserts or replaces an observed peer.
func (s *Store) UpsertPeer(ctx context.Context, login string, campusID, cursusID int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peers (login, campus_id, cursus_id) VALUES (?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			campus_id = excluded.campus_id,
			cursus_id = excluded.cursus_id`,
		login, campusID, cursusID,
	)
	if err != nil {
		return fmt.Errorf("store: upsert peer %s: %w", login, err)
	}
	return nil
}

// Subscribe adds a watcher to a subject. Idempotent.
func (s *Store) Subscribe(ctx context.Context, userID int64, login string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO subscriptions (user_id, peer_login) VALUES (?, ?)`,
		userID, login,
	)
	if err != nil {
		return fmt.Errorf("store: subscribe %d to %s: %w", userID, login, err)
	}
	return nil
}

// Unsubscribe removes one watcher/subject pair.
func (s *Store) Unsubscribe(ctx context.Context, userID int64, login string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE user_id = ? AND peer_login = ?`,
		userID, login,
	)
	if err != nil {
		return fmt.Errorf("store: unsubscribe %d from %s: %w", userID, login, err)
	}
	return nil
}

// DeleteWatcher removes all of a watcher's subscriptions and disables
// their event announcements. Called when delivery fails permanently
// (blocked bot, deactivated account); future cycles never re-attempt.
// Safe to call concurrently with paged reads.
func (s *Store) DeleteWatcher(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store: delete watcher %d subscriptions: %w", userID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET notify = 0 WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("store: disable notify for %d: %w", userID, err)
	}
	return nil
}

// ListObserved returns one page of (subject, watcher-set) pairs, ordered
// by subject login. An empty page signals the end of the working set.
func (s *Store) ListObserved(ctx context.Context, limit, offset int) ([]Observed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sub.peer_login, u.id, u.left_notice
		FROM subscriptions sub
		JOIN users u ON u.id = sub.user_id
		WHERE sub.peer_login IN (
			SELECT DISTINCT peer_login FROM subscriptions
			ORDER BY peer_login LIMIT ? OFFSET ?
		)
		ORDER BY sub.peer_login, u.id`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list observed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var observed []Observed
	for rows.Next() {
		var (
			login   string
			watcher Watcher
		)
		if err := rows.Scan(&login, &watcher.ID, &watcher.LeftNotice); err != nil {
			return nil, fmt.Errorf("store: scan observed: %w", err)
		}
		if len(observed) == 0 || observed[len(observed)-1].Login != login {
			observed = append(observed, Observed{Login: login})
		}
		last := &observed[len(observed)-1]
		last.Watchers = append(last.Watchers, watcher)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list observed rows: %w", err)
	}
	return observed, nil
}

// ListNotifiable returns one page of (campus, cursus) groups with the
// users who opted into event announcements, ordered by campus then
// cursus. An empty page signals the end.
func (s *Store) ListNotifiable(ctx context.Context, limit, offset int) ([]NotifyGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.campus_id, p.cursus_id, c.time_zone, u.id
		FROM users u
		JOIN peers p ON p.login = u.login
		JOIN campuses c ON c.id = p.campus_id
		WHERE u.notify = 1
		  AND p.campus_id IS NOT NULL
		  AND p.cursus_id IS NOT NULL
		  AND (p.campus_id, p.cursus_id) IN (
			SELECT DISTINCT p2.campus_id, p2.cursus_id
			FROM users u2
			JOIN peers p2 ON p2.login = u2.login
			WHERE u2.notify = 1
			  AND p2.campus_id IS NOT NULL
			  AND p2.cursus_id IS NOT NULL
			ORDER BY p2.campus_id, p2.cursus_id
			LIMIT ? OFFSET ?
		  )
		ORDER BY p.campus_id, p.cursus_id, u.id`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list notifiable: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []NotifyGroup
	for rows.Next() {
		var (
			campusID, cursusID int
			timeZone           string
			userID             int64
		)
		if err := rows.Scan(&campusID, &cursusID, &timeZone, &userID); err != nil {
			return nil, fmt.Errorf("store: scan notifiable: %w", err)
		}
		n := len(groups)
		if n == 0 || groups[n-1].CampusID != campusID || groups[n-1].CursusID != cursusID {
			groups = append(groups, NotifyGroup{
				CampusID: campusID,
				CursusID: cursusID,
				TimeZone: timeZone,
			})
			n++
		}
		groups[n-1].WatcherIDs = append(groups[n-1].WatcherIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list notifiable rows: %w", err)
	}
	return groups, nil
}

// UpsertCampus inserts or replaces a campus catalog entry.
func (s *Store) UpsertCampus(ctx context.Context, c Campus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campuses (id, name, time_zone) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			time_zone = excluded.time_zone`,
		c.ID, c.Name, c.TimeZone,
	)
	if err != nil {
		return fmt.Errorf("store: upsert campus %d: %w", c.ID, err)
	}
	return nil
}

// CampusIDs returns the IDs of all stored campuses.
func (s *Store) CampusIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM campuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: campus ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan campus id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: campus ids rows: %w", err)
	}
	return ids, nil
}
