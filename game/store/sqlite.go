package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tablezoo/tablezoo/game/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	game_type  TEXT NOT NULL,
	state      TEXT NOT NULL,
	document   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id      TEXT PRIMARY KEY,
	games_played INTEGER NOT NULL DEFAULT 0,
	games_won    INTEGER NOT NULL DEFAULT 0
);
`

// SQLite persists sessions as whole JSON documents — the store contract is
// an atomic whole-object upsert, so a document column beats a wide schema.
// The id, game type, state, and timestamps are mirrored into columns for
// querying and listing.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a sqlite store at path. Busy timeout and
// WAL keep concurrent readers off the single writer's back.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Load implements session.Store.
func (s *SQLite) Load(ctx context.Context, id int64) (*session.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", id, err)
	}
	return decodeSession(doc)
}

// Save implements session.Store. A zero id allocates one first; allocation
// and the document write commit together so a half-saved session can never
// be observed.
func (s *SQLite) Save(ctx context.Context, sess *session.Session) (*session.Session, error) {
	stored := sess.Clone()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	defer tx.Rollback()

	if stored.ID == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (game_type, state, document, created_at, updated_at)
			 VALUES (?, ?, '', ?, ?)`,
			stored.GameType, string(stored.State), stored.CreatedAt, stored.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert session: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert session: %w", err)
		}
		stored.ID = id
	}
	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode session %d: %w", stored.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, game_type, state, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			game_type = excluded.game_type,
			state = excluded.state,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		stored.ID, stored.GameType, string(stored.State), string(doc),
		stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save session %d: %w", stored.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save session %d: %w", stored.ID, err)
	}
	return stored, nil
}

// List implements session.Store, newest first.
func (s *SQLite) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sess, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// User implements session.UserStore.
func (s *SQLite) User(ctx context.Context, userID string) (session.UserStats, error) {
	stats := session.UserStats{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT games_played, games_won FROM users WHERE user_id = ?`, userID).
		Scan(&stats.GamesPlayed, &stats.GamesWon)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return session.UserStats{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return stats, nil
}

// SaveCounters implements session.UserStore.
func (s *SQLite) SaveCounters(ctx context.Context, stats session.UserStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, games_played, games_won)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			games_played = excluded.games_played,
			games_won = excluded.games_won`,
		stats.UserID, stats.GamesPlayed, stats.GamesWon)
	if err != nil {
		return fmt.Errorf("save user %s: %w", stats.UserID, err)
	}
	return nil
}

func decodeSession(doc string) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	return &sess, nil
}
