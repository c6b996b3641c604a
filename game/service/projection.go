package service

import (
	"github.com/tablezoo/tablezoo/game/engine"
	"github.com/tablezoo/tablezoo/game/session"
)

// ProjectForViewer shapes a session for one viewer. While the game is
// running the engine strips whatever viewerID may not see; finished
// sessions are shown in full.
func ProjectForViewer(engines *engine.Registry, sess *session.Session, viewerID string) (*SessionView, error) {
	data := sess.Data
	if sess.State == session.StateStarted {
		eng, err := engines.Get(sess.GameType)
		if err != nil {
			return nil, err
		}
		redacted, err := eng.RedactForViewer(sess.Data, viewerID)
		if err != nil {
			return nil, err
		}
		data = redacted
	}
	return &SessionView{
		ID:         sess.ID,
		GameType:   sess.GameType,
		Visibility: sess.Visibility,
		MinPlayers: sess.MinPlayers,
		MaxPlayers: sess.MaxPlayers,
		Players:    sess.Players,
		Online:     sess.Online,
		Watchers:   sess.Watchers,
		NextToMove: sess.NextToMove,
		State:      sess.State,
		GameData:   data,
		Logs:       sess.Logs,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}, nil
}

// ProjectPublic shapes a session for list views, independent of state.
func ProjectPublic(sess *session.Session) *SessionSummary {
	return &SessionSummary{
		ID:          sess.ID,
		GameType:    sess.GameType,
		Visibility:  sess.Visibility,
		State:       sess.State,
		PlayerCount: len(sess.Players),
		MinPlayers:  sess.MinPlayers,
		MaxPlayers:  sess.MaxPlayers,
		CreatedAt:   sess.CreatedAt,
	}
}
