package session

import (
	"slices"
	"time"

	"github.com/tablezoo/tablezoo/game/engine"
)

// State is the lifecycle stage of a session.
type State string

const (
	StateLobby    State = "lobby"
	StateStarted  State = "started"
	StateFinished State = "finished"
)

// Visibility controls whether a session shows up in public listings.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// LogEntry is one line of a session's append-only audit log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Message string    `json:"message"`
}

// Session is one game instance, from lobby to finished. Finished sessions
// are never deleted; they are kept for history.
//
// Players is ordered by join time and that order is meaningful (seating).
// Online is the subset of Players currently connected. Watchers are
// spectators, disjoint from Players while the session is active. NextToMove
// names the players whose move is awaited; it is empty exactly when the
// session is not Started.
type Session struct {
	ID         int64           `json:"id"`
	GameType   string          `json:"game_type"`
	Visibility Visibility      `json:"visibility"`
	MinPlayers int             `json:"min_players"`
	MaxPlayers int             `json:"max_players"`
	Players    []string        `json:"players"`
	Online     []string        `json:"online"`
	Watchers   []string        `json:"watchers"`
	NextToMove []string        `json:"next_to_move"`
	State      State           `json:"state"`
	Data       engine.GameData `json:"game_data"`
	Logs       []LogEntry      `json:"logs"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// HasPlayer reports whether userID has joined.
func (s *Session) HasPlayer(userID string) bool {
	return slices.Contains(s.Players, userID)
}

// IsOnline reports whether userID is a connected player.
func (s *Session) IsOnline(userID string) bool {
	return slices.Contains(s.Online, userID)
}

// HasWatcher reports whether userID is spectating.
func (s *Session) HasWatcher(userID string) bool {
	return slices.Contains(s.Watchers, userID)
}

// IsNextToMove reports whether the session is waiting on userID.
func (s *Session) IsNextToMove(userID string) bool {
	return slices.Contains(s.NextToMove, userID)
}

// Clone deep-copies the session. Transitions mutate a clone so a failed
// step never leaks partial state, and stores hand out clones so callers
// cannot alias the persisted snapshot.
func (s *Session) Clone() *Session {
	out := *s
	out.Players = slices.Clone(s.Players)
	out.Online = slices.Clone(s.Online)
	out.Watchers = slices.Clone(s.Watchers)
	out.NextToMove = slices.Clone(s.NextToMove)
	out.Logs = slices.Clone(s.Logs)
	out.Data = slices.Clone(s.Data)
	return &out
}

func (s *Session) log(at time.Time, actor, message string) {
	s.Logs = append(s.Logs, LogEntry{At: at, Actor: actor, Message: message})
}

func remove(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
