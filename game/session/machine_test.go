package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tablezoo/tablezoo/game/engine"
	"github.com/tablezoo/tablezoo/game/session"
	"github.com/tablezoo/tablezoo/game/store"
)

// fakeEngine is a scriptable rules engine. Its blob tracks the roster,
// readiness, and a countdown of moves until the game finishes.
type fakeEngine struct {
	min, max      int
	movesToFinish int
	winner        string // first place on finish; default first joiner
	failAddPlayer bool
	failMove      bool

	// When set, these override the next-to-move ids the engine reports,
	// letting tests model an engine that breaks its contract.
	startNames []string
	moveNames  []string
}

type fakeState struct {
	Players   []string        `json:"players"`
	Ready     map[string]bool `json:"ready"`
	MovesLeft int             `json:"moves_left"`
	Places    map[string]int  `json:"places,omitempty"`
	Done      bool            `json:"done"`
	Redacted  bool            `json:"redacted,omitempty"`
}

func (f *fakeEngine) decode(data engine.GameData) (*fakeState, error) {
	var s fakeState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Ready == nil {
		s.Ready = make(map[string]bool)
	}
	return &s, nil
}

func (f *fakeEngine) encode(s *fakeState) (engine.GameData, error) {
	out, err := json.Marshal(s)
	return engine.GameData(out), err
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) NewGame() (engine.Setup, error) {
	data, err := f.encode(&fakeState{MovesLeft: f.movesToFinish, Ready: map[string]bool{}})
	if err != nil {
		return engine.Setup{}, err
	}
	return engine.Setup{PlayersMin: f.min, PlayersMax: f.max, Data: data}, nil
}

func (f *fakeEngine) AddPlayer(data engine.GameData, userID string) (engine.GameData, error) {
	if f.failAddPlayer {
		return nil, errors.New("add player refused")
	}
	s, err := f.decode(data)
	if err != nil {
		return nil, err
	}
	s.Players = append(s.Players, userID)
	return f.encode(s)
}

func (f *fakeEngine) RemovePlayer(data engine.GameData, userID string) (engine.GameData, error) {
	s, err := f.decode(data)
	if err != nil {
		return nil, err
	}
	out := s.Players[:0]
	for _, id := range s.Players {
		if id != userID {
			out = append(out, id)
		}
	}
	s.Players = out
	delete(s.Ready, userID)
	return f.encode(s)
}

func (f *fakeEngine) ToggleReady(data engine.GameData, userID string) (engine.GameData, error) {
	s, err := f.decode(data)
	if err != nil {
		return nil, err
	}
	s.Ready[userID] = !s.Ready[userID]
	return f.encode(s)
}

func (f *fakeEngine) CheckReady(data engine.GameData) (bool, error) {
	s, err := f.decode(data)
	if err != nil {
		return false, err
	}
	if len(s.Players) == 0 {
		return false, nil
	}
	for _, id := range s.Players {
		if !s.Ready[id] {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeEngine) StartGame(data engine.GameData) (engine.Turn, error) {
	s, err := f.decode(data)
	if err != nil {
		return engine.Turn{}, err
	}
	out, err := f.encode(s)
	if err != nil {
		return engine.Turn{}, err
	}
	next := []string{s.Players[0]}
	if f.startNames != nil {
		next = f.startNames
	}
	return engine.Turn{Data: out, NextPlayerIDs: next}, nil
}

func (f *fakeEngine) MakeMove(data engine.GameData, userID string, _ json.RawMessage) (engine.Turn, error) {
	if f.failMove {
		return engine.Turn{}, errors.New("move refused")
	}
	s, err := f.decode(data)
	if err != nil {
		return engine.Turn{}, err
	}
	s.MovesLeft--
	if s.MovesLeft > 0 {
		out, err := f.encode(s)
		if err != nil {
			return engine.Turn{}, err
		}
		next := []string{f.nextAfter(s, userID)}
		if f.moveNames != nil {
			next = f.moveNames
		}
		return engine.Turn{Data: out, NextPlayerIDs: next}, nil
	}

	s.Done = true
	winner := f.winner
	if winner == "" {
		winner = s.Players[0]
	}
	s.Places = make(map[string]int, len(s.Players))
	for _, id := range s.Players {
		if id == winner {
			s.Places[id] = 1
		} else {
			s.Places[id] = 2
		}
	}
	out, err := f.encode(s)
	if err != nil {
		return engine.Turn{}, err
	}
	return engine.Turn{Data: out}, nil
}

func (f *fakeEngine) nextAfter(s *fakeState, userID string) string {
	for i, id := range s.Players {
		if id == userID {
			return s.Players[(i+1)%len(s.Players)]
		}
	}
	return s.Players[0]
}

func (f *fakeEngine) RedactForViewer(data engine.GameData, _ string) (engine.GameData, error) {
	s, err := f.decode(data)
	if err != nil {
		return nil, err
	}
	if s.Done {
		return data, nil
	}
	s.MovesLeft = 0
	s.Redacted = true
	return f.encode(s)
}

func (f *fakeEngine) TerminalSummary(data engine.GameData) ([]engine.Placement, error) {
	s, err := f.decode(data)
	if err != nil {
		return nil, err
	}
	if !s.Done {
		return nil, errors.New("game not finished")
	}
	summary := make([]engine.Placement, 0, len(s.Places))
	for _, id := range s.Players {
		summary = append(summary, engine.Placement{UserID: id, Place: s.Places[id]})
	}
	return summary, nil
}

func newTestMachine(t *testing.T, eng *fakeEngine) (*session.Machine, *store.Memory) {
	t.Helper()
	registry, err := engine.NewRegistry(eng)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	mem := store.NewMemory()
	return session.NewMachine(mem, mem, registry, nil), mem
}

// newLobby creates a session and joins the given users.
func newLobby(t *testing.T, m *session.Machine, users ...string) *session.Session {
	t.Helper()
	sess, err := m.Create(context.Background(), "fake", session.VisibilityPublic)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, u := range users {
		if sess, err = m.Join(context.Background(), sess.ID, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	return sess
}

// startGame readies every player and starts the session.
func startGame(t *testing.T, m *session.Machine, id int64, users ...string) *session.Session {
	t.Helper()
	for _, u := range users {
		if _, err := m.ToggleReady(context.Background(), id, u); err != nil {
			t.Fatalf("ready %s: %v", u, err)
		}
	}
	sess, err := m.Start(context.Background(), id)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

// snapshot returns the persisted session encoded for byte-level comparison.
func snapshot(t *testing.T, mem *store.Memory, id int64) []byte {
	t.Helper()
	sess, err := mem.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load session %d: %v", id, err)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return raw
}

func TestMachine_Create(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4})

	sess, err := m.Create(context.Background(), "fake", session.VisibilityPublic)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == 0 {
		t.Error("expected an assigned id")
	}
	if sess.State != session.StateLobby {
		t.Errorf("state = %s, want lobby", sess.State)
	}
	if sess.MinPlayers != 2 || sess.MaxPlayers != 4 {
		t.Errorf("bounds = %d/%d, want 2/4", sess.MinPlayers, sess.MaxPlayers)
	}
	if len(sess.Logs) != 1 {
		t.Errorf("expected one log entry, got %d", len(sess.Logs))
	}
}

func TestMachine_Create_UnknownGameType(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4})

	_, err := m.Create(context.Background(), "nosuchgame", session.VisibilityPublic)
	if !session.IsKind(err, session.KindUnknownGameType) {
		t.Fatalf("expected unknown-game-type error, got %v", err)
	}
}

func TestMachine_Join_Capacity(t *testing.T) {
	m, mem := newTestMachine(t, &fakeEngine{min: 2, max: 4})
	ctx := context.Background()

	sess := newLobby(t, m)
	for i := 1; i <= 4; i++ {
		var err error
		sess, err = m.Join(ctx, sess.ID, fmt.Sprintf("u%d", i))
		if err != nil {
			t.Fatalf("join u%d: %v", i, err)
		}
	}
	if len(sess.Players) != 4 {
		t.Fatalf("players = %d, want 4", len(sess.Players))
	}

	before := snapshot(t, mem, sess.ID)
	_, err := m.Join(ctx, sess.ID, "u5")
	if !session.IsKind(err, session.KindJoin) {
		t.Fatalf("expected join error, got %v", err)
	}
	if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
		t.Error("failed join mutated the stored session")
	}
}

func TestMachine_Join_Validations(t *testing.T) {
	ctx := context.Background()

	t.Run("already joined", func(t *testing.T) {
		m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4})
		sess := newLobby(t, m, "u1")
		if _, err := m.Join(ctx, sess.ID, "u1"); !session.IsKind(err, session.KindJoin) {
			t.Fatalf("expected join error, got %v", err)
		}
	})

	t.Run("already started", func(t *testing.T) {
		m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3})
		sess := newLobby(t, m, "u1", "u2")
		startGame(t, m, sess.ID, "u1", "u2")
		if _, err := m.Join(ctx, sess.ID, "u3"); !session.IsKind(err, session.KindJoin) {
			t.Fatalf("expected join error, got %v", err)
		}
	})

	t.Run("session not found", func(t *testing.T) {
		m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4})
		if _, err := m.Join(ctx, 999, "u1"); !session.IsKind(err, session.KindNotFound) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})

	t.Run("engine refusal leaves session unchanged", func(t *testing.T) {
		m, mem := newTestMachine(t, &fakeEngine{min: 2, max: 4, failAddPlayer: true})
		sess, err := m.Create(ctx, "fake", session.VisibilityPublic)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		before := snapshot(t, mem, sess.ID)
		if _, err := m.Join(ctx, sess.ID, "u1"); !session.IsKind(err, session.KindEngine) {
			t.Fatalf("expected engine error, got %v", err)
		}
		if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
			t.Error("failed join mutated the stored session")
		}
	})
}

func TestMachine_OpenClose(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4})
	ctx := context.Background()
	sess := newLobby(t, m, "u1", "u2")

	// Joining marks a player online; open on an online player fails.
	if _, err := m.Open(ctx, sess.ID, "u1"); !session.IsKind(err, session.KindOpen) {
		t.Fatalf("expected open error for online player, got %v", err)
	}

	// Close drops presence but keeps membership.
	sess, err := m.Close(ctx, sess.ID, "u1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !sess.HasPlayer("u1") {
		t.Error("close removed membership")
	}
	if sess.IsOnline("u1") {
		t.Error("close left the player online")
	}

	// Open brings them back.
	sess, err = m.Open(ctx, sess.ID, "u1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !sess.IsOnline("u1") {
		t.Error("open did not mark the player online")
	}

	// Non-members cannot open, and close on a stranger is a CloseError.
	if _, err := m.Open(ctx, sess.ID, "stranger"); !session.IsKind(err, session.KindOpen) {
		t.Fatalf("expected open error for non-member, got %v", err)
	}
	if _, err := m.Close(ctx, sess.ID, "stranger"); !session.IsKind(err, session.KindClose) {
		t.Fatalf("expected close error for non-participant, got %v", err)
	}
}

func TestMachine_Watch(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3})
	ctx := context.Background()
	sess := newLobby(t, m, "u1", "u2")

	// Lobbies cannot be watched.
	if _, err := m.Watch(ctx, sess.ID, "w1"); !session.IsKind(err, session.KindWatch) {
		t.Fatalf("expected watch error in lobby, got %v", err)
	}

	startGame(t, m, sess.ID, "u1", "u2")

	sess, err := m.Watch(ctx, sess.ID, "w1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !sess.HasWatcher("w1") {
		t.Error("watcher not recorded")
	}

	if _, err := m.Watch(ctx, sess.ID, "w1"); !session.IsKind(err, session.KindWatch) {
		t.Fatalf("expected duplicate-watch error, got %v", err)
	}
	if _, err := m.Watch(ctx, sess.ID, "u1"); !session.IsKind(err, session.KindWatch) {
		t.Fatalf("expected watch error for player, got %v", err)
	}

	// Close drops a watcher entirely.
	sess, err = m.Close(ctx, sess.ID, "w1")
	if err != nil {
		t.Fatalf("close watcher: %v", err)
	}
	if sess.HasWatcher("w1") {
		t.Error("closed watcher still recorded")
	}
}

func TestMachine_Leave(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3})
	ctx := context.Background()

	sess := newLobby(t, m, "u1", "u2")
	out, err := m.Leave(ctx, sess.ID, "u1")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if out.HasPlayer("u1") || out.IsOnline("u1") {
		t.Error("leaver still present")
	}

	if _, err := m.Leave(ctx, sess.ID, "u1"); !session.IsKind(err, session.KindLeave) {
		t.Fatalf("expected leave error for non-member, got %v", err)
	}

	// Mid-game abandonment is disallowed.
	sess2 := newLobby(t, m, "a", "b")
	startGame(t, m, sess2.ID, "a", "b")
	if _, err := m.Leave(ctx, sess2.ID, "a"); !session.IsKind(err, session.KindLeave) {
		t.Fatalf("expected leave error mid-game, got %v", err)
	}
}

func TestMachine_ToggleReady_NeverJoined(t *testing.T) {
	// The machine imposes no precondition of its own on toggle-ready; the
	// engine delegate still runs for users who never joined.
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4})
	sess := newLobby(t, m)

	if _, err := m.ToggleReady(context.Background(), sess.ID, "outsider"); err != nil {
		t.Fatalf("toggle ready for outsider: %v", err)
	}
}

func TestMachine_Start_Validations(t *testing.T) {
	m, mem := newTestMachine(t, &fakeEngine{min: 2, max: 4})
	ctx := context.Background()
	sess := newLobby(t, m, "u1")

	// Too few players, twice: the failure is deterministic and mutates
	// nothing.
	for i := 0; i < 2; i++ {
		before := snapshot(t, mem, sess.ID)
		_, err := m.Start(ctx, sess.ID)
		if !session.IsKind(err, session.KindStart) {
			t.Fatalf("attempt %d: expected start error, got %v", i+1, err)
		}
		if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
			t.Fatalf("attempt %d: failed start mutated the session", i+1)
		}
	}

	// Enough players but not ready.
	if _, err := m.Join(ctx, sess.ID, "u2"); err != nil {
		t.Fatalf("join u2: %v", err)
	}
	if _, err := m.Start(ctx, sess.ID); !session.IsKind(err, session.KindStart) {
		t.Fatalf("expected not-ready start error, got %v", err)
	}

	loaded, err := m.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.State != session.StateLobby {
		t.Errorf("state = %s, want lobby", loaded.State)
	}
}

func TestMachine_Start(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3})
	sess := newLobby(t, m, "u1", "u2")

	sess = startGame(t, m, sess.ID, "u1", "u2")
	if sess.State != session.StateStarted {
		t.Errorf("state = %s, want started", sess.State)
	}
	if len(sess.NextToMove) != 1 || sess.NextToMove[0] != "u1" {
		t.Errorf("next to move = %v, want [u1]", sess.NextToMove)
	}

	// A started session cannot start again.
	if _, err := m.Start(context.Background(), sess.ID); !session.IsKind(err, session.KindStart) {
		t.Fatalf("expected start error on started session, got %v", err)
	}
}

func TestMachine_MakeMove_NotYourTurn(t *testing.T) {
	m, mem := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3})
	sess := newLobby(t, m, "u1", "u2")
	startGame(t, m, sess.ID, "u1", "u2")

	before := snapshot(t, mem, sess.ID)
	_, err := m.MakeMove(context.Background(), sess.ID, "u2", json.RawMessage(`{}`))
	if !session.IsKind(err, session.KindMove) {
		t.Fatalf("expected move error, got %v", err)
	}
	if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
		t.Error("rejected move mutated the stored session")
	}
}

func TestMachine_MakeMove_AdvancesTurn(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3})
	sess := newLobby(t, m, "u1", "u2")
	startGame(t, m, sess.ID, "u1", "u2")

	sess, err := m.MakeMove(context.Background(), sess.ID, "u1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(sess.NextToMove) != 1 || sess.NextToMove[0] != "u2" {
		t.Errorf("next to move = %v, want [u2]", sess.NextToMove)
	}
}

func TestMachine_MakeMove_Finish(t *testing.T) {
	m, mem := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 2, winner: "u2"})
	ctx := context.Background()
	sess := newLobby(t, m, "u1", "u2")
	startGame(t, m, sess.ID, "u1", "u2")

	sess, err := m.MakeMove(ctx, sess.ID, "u1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("first move: %v", err)
	}
	sess, err = m.MakeMove(ctx, sess.ID, "u2", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("final move: %v", err)
	}

	if sess.State != session.StateFinished {
		t.Errorf("state = %s, want finished", sess.State)
	}
	if len(sess.NextToMove) != 0 {
		t.Errorf("next to move = %v, want empty", sess.NextToMove)
	}

	u1, err := mem.User(ctx, "u1")
	if err != nil {
		t.Fatalf("load u1: %v", err)
	}
	u2, err := mem.User(ctx, "u2")
	if err != nil {
		t.Fatalf("load u2: %v", err)
	}
	if u1.GamesPlayed != 1 || u1.GamesWon != 0 {
		t.Errorf("u1 counters = %d/%d, want 1/0", u1.GamesPlayed, u1.GamesWon)
	}
	if u2.GamesPlayed != 1 || u2.GamesWon != 1 {
		t.Errorf("u2 counters = %d/%d, want 1/1", u2.GamesPlayed, u2.GamesWon)
	}

	// Finished sessions stay loadable for history.
	if _, err := m.Get(ctx, sess.ID); err != nil {
		t.Errorf("finished session not loadable: %v", err)
	}
}

func TestMachine_Start_RejectsOutOfRosterNext(t *testing.T) {
	m, mem := newTestMachine(t, &fakeEngine{min: 2, max: 4, movesToFinish: 3, startNames: []string{"ghost"}})
	ctx := context.Background()
	sess := newLobby(t, m, "u1", "u2")
	for _, u := range []string{"u1", "u2"} {
		if _, err := m.ToggleReady(ctx, sess.ID, u); err != nil {
			t.Fatalf("ready %s: %v", u, err)
		}
	}

	before := snapshot(t, mem, sess.ID)
	_, err := m.Start(ctx, sess.ID)
	if !session.IsKind(err, session.KindEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
		t.Error("rejected start mutated the stored session")
	}

	loaded, err := m.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.State != session.StateLobby {
		t.Errorf("state = %s, want lobby", loaded.State)
	}
}

func TestMachine_MakeMove_RejectsOutOfRosterNext(t *testing.T) {
	eng := &fakeEngine{min: 2, max: 4, movesToFinish: 3}
	m, mem := newTestMachine(t, eng)
	ctx := context.Background()
	sess := newLobby(t, m, "u1", "u2")
	startGame(t, m, sess.ID, "u1", "u2")

	eng.moveNames = []string{"ghost"}
	before := snapshot(t, mem, sess.ID)
	_, err := m.MakeMove(ctx, sess.ID, "u1", json.RawMessage(`{}`))
	if !session.IsKind(err, session.KindEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
		t.Error("rejected move mutated the stored session")
	}

	// The session is still playable: the stored turn order stands and a
	// well-behaved engine can continue it.
	eng.moveNames = nil
	next, err := m.MakeMove(ctx, sess.ID, "u1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("recovery move: %v", err)
	}
	if len(next.NextToMove) != 1 || next.NextToMove[0] != "u2" {
		t.Errorf("next to move = %v, want [u2]", next.NextToMove)
	}
}

func TestMachine_MakeMove_EngineFailure(t *testing.T) {
	eng := &fakeEngine{min: 2, max: 4, movesToFinish: 3}
	m, mem := newTestMachine(t, eng)
	sess := newLobby(t, m, "u1", "u2")
	startGame(t, m, sess.ID, "u1", "u2")

	eng.failMove = true
	before := snapshot(t, mem, sess.ID)
	_, err := m.MakeMove(context.Background(), sess.ID, "u1", json.RawMessage(`{}`))
	if !session.IsKind(err, session.KindEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if after := snapshot(t, mem, sess.ID); string(before) != string(after) {
		t.Error("failed engine call mutated the stored session")
	}
}

func TestMachine_ConcurrentJoin_OneSeat(t *testing.T) {
	m, _ := newTestMachine(t, &fakeEngine{min: 1, max: 1})
	ctx := context.Background()
	sess := newLobby(t, m)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, u := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := m.Join(ctx, sess.ID, user)
			results <- err
		}(u)
	}
	wg.Wait()
	close(results)

	var successes, joinErrs int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case session.IsKind(err, session.KindJoin):
			joinErrs++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || joinErrs != 1 {
		t.Fatalf("got %d successes and %d join errors, want 1 and 1", successes, joinErrs)
	}

	final, err := m.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(final.Players) != 1 {
		t.Fatalf("players = %v, want exactly one", final.Players)
	}
}
