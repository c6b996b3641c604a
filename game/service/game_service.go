package service

import (
	"context"
	"encoding/json"

	"github.com/tablezoo/tablezoo/game/session"
)

// GameService defines every session-facing operation the transports need.
// Mutating calls return the acting user's view of the updated session.
type GameService interface {
	// Session lifecycle
	CreateSession(ctx context.Context, gameType string, visibility session.Visibility) (*SessionView, error)
	Join(ctx context.Context, id int64, userID string) (*SessionView, error)
	Open(ctx context.Context, id int64, userID string) (*SessionView, error)
	Watch(ctx context.Context, id int64, userID string) (*SessionView, error)
	Leave(ctx context.Context, id int64, userID string) (*SessionView, error)
	Close(ctx context.Context, id int64, userID string) (*SessionView, error)
	ToggleReady(ctx context.Context, id int64, userID string) (*SessionView, error)
	Start(ctx context.Context, id int64) (*SessionView, error)
	MakeMove(ctx context.Context, id int64, userID string, move json.RawMessage) (*SessionView, error)

	// Read side
	GetSession(ctx context.Context, id int64, viewerID string) (*SessionView, error)
	ListSessions(ctx context.Context) ([]*SessionSummary, error)
	UserStats(ctx context.Context, userID string) (*UserStatsView, error)

	// GameTypes lists the registered engine keys.
	GameTypes() []string
}
