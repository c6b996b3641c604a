package session

import "context"

// Store is the persistence collaborator for sessions. Save is a whole-object
// idempotent upsert: the stored session is replaced atomically. A Save with
// ID zero allocates a new id and returns the stored session with it set.
//
// Implementations may retry transient I/O failures internally; the state
// machine never retries business-rule failures.
type Store interface {
	Load(ctx context.Context, id int64) (*Session, error)
	Save(ctx context.Context, s *Session) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
}

// UserStats are the cumulative per-user counters updated at the Finished
// transition.
type UserStats struct {
	UserID      string `json:"user_id"`
	GamesPlayed int    `json:"games_played"`
	GamesWon    int    `json:"games_won"`
}

// UserStore is the persistence collaborator for user counters. User returns
// zero counters for ids it has never seen.
type UserStore interface {
	User(ctx context.Context, userID string) (UserStats, error)
	SaveCounters(ctx context.Context, stats UserStats) error
}
