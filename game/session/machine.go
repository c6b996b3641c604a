package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tablezoo/tablezoo/game/engine"
)

// Machine executes session lifecycle transitions. Every mutating operation
// follows the same shape: acquire the per-id lock, load, validate every
// precondition, delegate to the rules engine on a clone, persist the clone,
// release the lock. A failure anywhere before the save leaves the stored
// session byte-for-byte unchanged.
type Machine struct {
	store   Store
	users   UserStore
	engines *engine.Registry
	locks   *keyedLocks
	logger  *zap.Logger

	// now is swapped in tests for deterministic timestamps.
	now func() time.Time
}

// NewMachine wires a state machine over its collaborators.
func NewMachine(store Store, users UserStore, engines *engine.Registry, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:   store,
		users:   users,
		engines: engines,
		locks:   newKeyedLocks(),
		logger:  logger,
		now:     time.Now,
	}
}

// Create opens a new session in the lobby. The engine declares the player
// bounds and the initial game blob.
func (m *Machine) Create(ctx context.Context, gameType string, visibility Visibility) (*Session, error) {
	eng, err := m.engines.Get(gameType)
	if err != nil {
		return nil, &Error{Kind: KindUnknownGameType, Action: "create", Reason: "unknown game type", Err: err}
	}
	setup, err := eng.NewGame()
	if err != nil {
		return nil, engineFailure("create", err)
	}
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	now := m.now()
	sess := &Session{
		GameType:   gameType,
		Visibility: visibility,
		MinPlayers: setup.PlayersMin,
		MaxPlayers: setup.PlayersMax,
		State:      StateLobby,
		Data:       setup.Data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	sess.log(now, "", "session created")
	saved, err := m.store.Save(ctx, sess)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session created",
		zap.Int64("session_id", saved.ID),
		zap.String("game_type", gameType))
	return saved, nil
}

// Get returns the last-persisted snapshot of a session. Reads run
// unsynchronized against the store.
func (m *Machine) Get(ctx context.Context, id int64) (*Session, error) {
	sess, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, wrapLoad("get", err)
	}
	return sess, nil
}

// List returns snapshots of every stored session.
func (m *Machine) List(ctx context.Context) ([]*Session, error) {
	return m.store.List(ctx)
}

// Join adds a user to a lobby session's player roster and marks them online.
func (m *Machine) Join(ctx context.Context, id int64, userID string) (*Session, error) {
	return m.transition(ctx, id, "join", func(sess *Session, eng engine.Engine) error {
		if sess.State != StateLobby {
			return fail(KindJoin, "join", "game already started")
		}
		if len(sess.Players) >= sess.MaxPlayers {
			return fail(KindJoin, "join", "maximum players")
		}
		if sess.HasPlayer(userID) {
			return fail(KindJoin, "join", "already joined")
		}
		if sess.IsOnline(userID) {
			return fail(KindJoin, "join", "already online")
		}
		data, err := eng.AddPlayer(sess.Data, userID)
		if err != nil {
			return engineFailure("join", err)
		}
		sess.Data = data
		sess.Players = append(sess.Players, userID)
		sess.Online = append(sess.Online, userID)
		sess.log(m.now(), userID, "joined the game")
		return nil
	})
}

// Open marks a previously-joined user online again, e.g. after reopening
// their browser tab. Membership is unchanged.
func (m *Machine) Open(ctx context.Context, id int64, userID string) (*Session, error) {
	return m.transition(ctx, id, "open", func(sess *Session, _ engine.Engine) error {
		if !sess.HasPlayer(userID) {
			return fail(KindOpen, "open", "not a member")
		}
		if sess.IsOnline(userID) {
			return fail(KindOpen, "open", "already online")
		}
		sess.Online = append(sess.Online, userID)
		sess.log(m.now(), userID, "opened the game")
		return nil
	})
}

// Watch adds a spectator to a running game. Lobbies cannot be watched, and
// finished games are covered by the public projection instead.
func (m *Machine) Watch(ctx context.Context, id int64, userID string) (*Session, error) {
	return m.transition(ctx, id, "watch", func(sess *Session, _ engine.Engine) error {
		if sess.State != StateStarted {
			return fail(KindWatch, "watch", "game not started")
		}
		if sess.HasPlayer(userID) {
			return fail(KindWatch, "watch", "already a player")
		}
		if sess.HasWatcher(userID) {
			return fail(KindWatch, "watch", "already watching")
		}
		sess.Watchers = append(sess.Watchers, userID)
		sess.log(m.now(), userID, "started watching")
		return nil
	})
}

// Leave removes a user from the roster. Abandoning a game mid-play is not
// allowed; only lobby and finished sessions may be left.
func (m *Machine) Leave(ctx context.Context, id int64, userID string) (*Session, error) {
	return m.transition(ctx, id, "leave", func(sess *Session, eng engine.Engine) error {
		if sess.State == StateStarted {
			return fail(KindLeave, "leave", "game in progress")
		}
		if !sess.HasPlayer(userID) {
			return fail(KindLeave, "leave", "not a member")
		}
		data, err := eng.RemovePlayer(sess.Data, userID)
		if err != nil {
			return engineFailure("leave", err)
		}
		sess.Data = data
		sess.Players = remove(sess.Players, userID)
		sess.Online = remove(sess.Online, userID)
		sess.log(m.now(), userID, "left the game")
		return nil
	})
}

// Close drops a participant's online presence (a closed tab) without
// touching membership: watchers stop watching, players merely go offline.
func (m *Machine) Close(ctx context.Context, id int64, userID string) (*Session, error) {
	return m.transition(ctx, id, "close", func(sess *Session, _ engine.Engine) error {
		switch {
		case sess.HasWatcher(userID):
			sess.Watchers = remove(sess.Watchers, userID)
		case sess.HasPlayer(userID):
			sess.Online = remove(sess.Online, userID)
		default:
			return fail(KindClose, "close", "not a participant")
		}
		sess.log(m.now(), userID, "closed the game")
		return nil
	})
}

// ToggleReady flips the user's readiness flag. The machine imposes no
// precondition of its own; the engine owns the semantics.
func (m *Machine) ToggleReady(ctx context.Context, id int64, userID string) (*Session, error) {
	return m.transition(ctx, id, "toggle ready", func(sess *Session, eng engine.Engine) error {
		data, err := eng.ToggleReady(sess.Data, userID)
		if err != nil {
			return engineFailure("toggle ready", err)
		}
		sess.Data = data
		sess.log(m.now(), userID, "toggled ready")
		return nil
	})
}

// Start moves a lobby into play. The engine decides readiness and names the
// first player(s) to move.
func (m *Machine) Start(ctx context.Context, id int64) (*Session, error) {
	return m.transition(ctx, id, "start", func(sess *Session, eng engine.Engine) error {
		if sess.State != StateLobby {
			return fail(KindStart, "start", "already started")
		}
		if len(sess.Players) < sess.MinPlayers {
			return fail(KindStart, "start", "not enough players")
		}
		if len(sess.Players) > sess.MaxPlayers {
			return fail(KindStart, "start", "too many players")
		}
		ready, err := eng.CheckReady(sess.Data)
		if err != nil {
			return engineFailure("start", err)
		}
		if !ready {
			return fail(KindStart, "start", "players not ready")
		}
		turn, err := eng.StartGame(sess.Data)
		if err != nil {
			return engineFailure("start", err)
		}
		if len(turn.NextPlayerIDs) == 0 {
			return engineFailure("start", errors.New("engine named no players to move"))
		}
		if err := checkRoster(sess, turn.NextPlayerIDs); err != nil {
			return engineFailure("start", err)
		}
		sess.State = StateStarted
		sess.Data = turn.Data
		sess.NextToMove = turn.NextPlayerIDs
		sess.log(m.now(), "", "game started")
		return nil
	})
}

// MakeMove applies one player's move. When the engine reports no further
// players to move the session finishes: games-played counters bump for
// every player and games-won for the first-place finisher(s).
func (m *Machine) MakeMove(ctx context.Context, id int64, userID string, move json.RawMessage) (*Session, error) {
	var summary []engine.Placement
	sess, err := m.transition(ctx, id, "move", func(sess *Session, eng engine.Engine) error {
		if !sess.IsNextToMove(userID) {
			return fail(KindMove, "move", "not your turn")
		}
		turn, err := eng.MakeMove(sess.Data, userID, move)
		if err != nil {
			return engineFailure("move", err)
		}
		sess.Data = turn.Data
		now := m.now()
		sess.log(now, userID, "made a move")
		if len(turn.NextPlayerIDs) > 0 {
			if err := checkRoster(sess, turn.NextPlayerIDs); err != nil {
				return engineFailure("move", err)
			}
			sess.NextToMove = turn.NextPlayerIDs
			return nil
		}
		summary, err = eng.TerminalSummary(turn.Data)
		if err != nil {
			return engineFailure("move", err)
		}
		sess.State = StateFinished
		sess.NextToMove = nil
		sess.log(now, "", "game finished")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if summary != nil {
		m.recordOutcome(ctx, sess, summary)
	}
	return sess, nil
}

// recordOutcome bumps user counters once a game finishes. Counter storage
// is a separate collaborator; a failure here is logged and does not undo
// the already-persisted finish.
func (m *Machine) recordOutcome(ctx context.Context, sess *Session, summary []engine.Placement) {
	winners := make(map[string]bool)
	for _, p := range summary {
		if p.Place == 1 {
			winners[p.UserID] = true
		}
	}
	for _, userID := range sess.Players {
		stats, err := m.users.User(ctx, userID)
		if err != nil {
			m.logger.Warn("load user counters failed",
				zap.Int64("session_id", sess.ID),
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		stats.UserID = userID
		stats.GamesPlayed++
		if winners[userID] {
			stats.GamesWon++
		}
		if err := m.users.SaveCounters(ctx, stats); err != nil {
			m.logger.Warn("save user counters failed",
				zap.Int64("session_id", sess.ID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	m.logger.Info("game finished",
		zap.Int64("session_id", sess.ID),
		zap.String("game_type", sess.GameType),
		zap.Int("players", len(sess.Players)))
}

// transition runs one mutating action inside the session's critical
// section. apply validates and mutates the clone; only a nil return
// persists it.
func (m *Machine) transition(ctx context.Context, id int64, action string, apply func(*Session, engine.Engine) error) (*Session, error) {
	release := m.locks.acquire(id)
	defer release()

	sess, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, wrapLoad(action, err)
	}
	eng, err := m.engines.Get(sess.GameType)
	if err != nil {
		return nil, &Error{Kind: KindUnknownGameType, Action: action, Reason: "unknown game type", Err: err}
	}

	next := sess.Clone()
	if err := apply(next, eng); err != nil {
		m.logger.Debug("transition rejected",
			zap.Int64("session_id", id),
			zap.String("action", action),
			zap.Error(err))
		return nil, err
	}
	next.UpdatedAt = m.now()

	saved, err := m.store.Save(ctx, next)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// checkRoster rejects engine turn output naming anyone outside the roster.
// Engines are untrusted; an out-of-roster id in NextToMove would leave a
// session no member could ever move in.
func checkRoster(sess *Session, nextPlayerIDs []string) error {
	for _, id := range nextPlayerIDs {
		if !sess.HasPlayer(id) {
			return fmt.Errorf("engine named %q to move, who is not a player", id)
		}
	}
	return nil
}

func wrapLoad(action string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &Error{Kind: KindNotFound, Action: action, Reason: "session not found", Err: err}
	}
	return err
}
