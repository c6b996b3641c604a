package service

import (
	"time"

	"github.com/tablezoo/tablezoo/game/engine"
	"github.com/tablezoo/tablezoo/game/session"
)

// SessionView is the per-viewer projection of a session. GameData has been
// redacted by the rules engine when the game is running.
type SessionView struct {
	ID         int64              `json:"id"`
	GameType   string             `json:"game_type"`
	Visibility session.Visibility `json:"visibility"`
	MinPlayers int                `json:"min_players"`
	MaxPlayers int                `json:"max_players"`
	Players    []string           `json:"players"`
	Online     []string           `json:"online"`
	Watchers   []string           `json:"watchers"`
	NextToMove []string           `json:"next_to_move"`
	State      session.State      `json:"state"`
	GameData   engine.GameData    `json:"game_data"`
	Logs       []session.LogEntry `json:"logs"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// SessionSummary is the public list-view projection: no watchers, no logs,
// no game state.
type SessionSummary struct {
	ID          int64              `json:"id"`
	GameType    string             `json:"game_type"`
	Visibility  session.Visibility `json:"visibility"`
	State       session.State      `json:"state"`
	PlayerCount int                `json:"player_count"`
	MinPlayers  int                `json:"min_players"`
	MaxPlayers  int                `json:"max_players"`
	CreatedAt   time.Time          `json:"created_at"`
}

// UserStatsView is the read side of the per-user win/play counters.
type UserStatsView struct {
	UserID      string `json:"user_id"`
	GamesPlayed int    `json:"games_played"`
	GamesWon    int    `json:"games_won"`
}
