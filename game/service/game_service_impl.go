package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tablezoo/tablezoo/game/engine"
	"github.com/tablezoo/tablezoo/game/session"
)

type gameServiceImpl struct {
	machine *session.Machine
	engines *engine.Registry
	users   session.UserStore
	logger  *zap.Logger
}

// NewGameService wires a game service over the state machine.
func NewGameService(machine *session.Machine, engines *engine.Registry, users session.UserStore, logger *zap.Logger) GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gameServiceImpl{
		machine: machine,
		engines: engines,
		users:   users,
		logger:  logger,
	}
}

func (s *gameServiceImpl) CreateSession(ctx context.Context, gameType string, visibility session.Visibility) (*SessionView, error) {
	sess, err := s.machine.Create(ctx, gameType, visibility)
	if err != nil {
		return nil, err
	}
	return ProjectForViewer(s.engines, sess, "")
}

func (s *gameServiceImpl) Join(ctx context.Context, id int64, userID string) (*SessionView, error) {
	sess, err := s.machine.Join(ctx, id, userID)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) Open(ctx context.Context, id int64, userID string) (*SessionView, error) {
	sess, err := s.machine.Open(ctx, id, userID)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) Watch(ctx context.Context, id int64, userID string) (*SessionView, error) {
	sess, err := s.machine.Watch(ctx, id, userID)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) Leave(ctx context.Context, id int64, userID string) (*SessionView, error) {
	sess, err := s.machine.Leave(ctx, id, userID)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) Close(ctx context.Context, id int64, userID string) (*SessionView, error) {
	sess, err := s.machine.Close(ctx, id, userID)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) ToggleReady(ctx context.Context, id int64, userID string) (*SessionView, error) {
	sess, err := s.machine.ToggleReady(ctx, id, userID)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) Start(ctx context.Context, id int64) (*SessionView, error) {
	sess, err := s.machine.Start(ctx, id)
	return s.project(sess, err, "")
}

func (s *gameServiceImpl) MakeMove(ctx context.Context, id int64, userID string, move json.RawMessage) (*SessionView, error) {
	sess, err := s.machine.MakeMove(ctx, id, userID, move)
	return s.project(sess, err, userID)
}

func (s *gameServiceImpl) GetSession(ctx context.Context, id int64, viewerID string) (*SessionView, error) {
	sess, err := s.machine.Get(ctx, id)
	return s.project(sess, err, viewerID)
}

func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionSummary, error) {
	sessions, err := s.machine.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, ProjectPublic(sess))
	}
	return out, nil
}

func (s *gameServiceImpl) UserStats(ctx context.Context, userID string) (*UserStatsView, error) {
	stats, err := s.users.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserStatsView{
		UserID:      userID,
		GamesPlayed: stats.GamesPlayed,
		GamesWon:    stats.GamesWon,
	}, nil
}

func (s *gameServiceImpl) GameTypes() []string {
	return s.engines.Names()
}

func (s *gameServiceImpl) project(sess *session.Session, err error, viewerID string) (*SessionView, error) {
	if err != nil {
		return nil, err
	}
	return ProjectForViewer(s.engines, sess, viewerID)
}
