package engine

import "encoding/json"

// GameData is the serialized internal state of one game instance. It is
// owned by the engine that produced it; the rest of the system passes it
// through without interpreting its contents. Blobs must be valid JSON so
// sessions can be persisted and shipped as documents, but their shape is
// the engine's business.
type GameData []byte

// MarshalJSON embeds the blob verbatim instead of base64-encoding it.
func (d GameData) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores the raw document.
func (d *GameData) UnmarshalJSON(b []byte) error {
	*d = append((*d)[0:0], b...)
	return nil
}

// Setup is the result of starting a fresh game: the player-count bounds the
// engine declares for this game type and the initial state blob.
type Setup struct {
	PlayersMin int
	PlayersMax int
	Data       GameData
}

// Turn is the result of a state-advancing engine call. An empty
// NextPlayerIDs from MakeMove signals that the game has finished and the
// blob now carries a terminal summary.
type Turn struct {
	Data          GameData
	NextPlayerIDs []string
}

// Placement is one entry of a finished game's terminal summary. Place is
// 1-based; tied players share a place.
type Placement struct {
	UserID string `json:"user_id"`
	Place  int    `json:"place"`
}

// Engine implements the rules of one game type.
type Engine interface {
	// Name returns the game-type key this engine is registered under.
	Name() string

	// NewGame produces the bounds and initial blob for a fresh game.
	NewGame() (Setup, error)

	// AddPlayer registers a participant with the game state.
	AddPlayer(data GameData, userID string) (GameData, error)

	// RemovePlayer drops a participant from the game state.
	RemovePlayer(data GameData, userID string) (GameData, error)

	// ToggleReady flips a participant's readiness flag.
	ToggleReady(data GameData, userID string) (GameData, error)

	// CheckReady reports whether the game may start.
	CheckReady(data GameData) (bool, error)

	// StartGame transitions the blob into play and names the first
	// player(s) to move.
	StartGame(data GameData) (Turn, error)

	// MakeMove applies one player's move. An empty Turn.NextPlayerIDs
	// means the game is over.
	MakeMove(data GameData, userID string, move json.RawMessage) (Turn, error)

	// RedactForViewer strips information viewerID is not allowed to see
	// while the game is in progress. It must be idempotent, and must
	// return the blob unchanged once the game has finished.
	RedactForViewer(data GameData, viewerID string) (GameData, error)

	// TerminalSummary parses the per-player outcome from a finished blob.
	TerminalSummary(data GameData) ([]Placement, error)
}
