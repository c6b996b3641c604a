package fivedice

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"sort"

	"github.com/tablezoo/tablezoo/game/engine"
)

// GameType is the registry key for this engine.
const GameType = "fivedice"

// Config tunes a Fivedice engine. The zero value is usable; missing fields
// fall back to the standard game.
type Config struct {
	Dice         int `json:"dice"`
	RerollRounds int `json:"reroll_rounds"`
	MinPlayers   int `json:"min_players"`
	MaxPlayers   int `json:"max_players"`
}

func (c Config) withDefaults() Config {
	if c.Dice <= 0 {
		c.Dice = 5
	}
	if c.RerollRounds <= 0 {
		c.RerollRounds = 2
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = 2
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = 6
	}
	return c
}

// Fivedice implements engine.Engine. The struct carries only immutable
// tuning; all game state lives in the blob.
type Fivedice struct {
	cfg Config
}

// New creates a Fivedice engine with the given tuning.
func New(cfg Config) *Fivedice {
	return &Fivedice{cfg: cfg.withDefaults()}
}

// Name implements engine.Engine.
func (f *Fivedice) Name() string { return GameType }

type phase string

const (
	phaseLobby phase = "lobby"
	phasePlay  phase = "play"
	phaseDone  phase = "done"
)

type cup struct {
	Ready   bool  `json:"ready"`
	Dice    []int `json:"dice,omitempty"`
	Rerolls int   `json:"rerolls"`
	Stood   bool  `json:"stood"`
	Total   int   `json:"total,omitempty"`
	Place   int   `json:"place,omitempty"`
	// Hidden marks a cup that was stripped by redaction. Kept in the
	// blob so redacting twice is a no-op.
	Hidden bool `json:"hidden,omitempty"`
}

type state struct {
	Phase phase           `json:"phase"`
	Seed  int64           `json:"seed"`
	Draws int             `json:"draws"`
	Order []string        `json:"order"`
	Turn  int             `json:"turn"`
	Cups  map[string]*cup `json:"cups"`
}

func decode(data engine.GameData) (*state, error) {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrMalformedData, err)
	}
	if s.Cups == nil {
		s.Cups = make(map[string]*cup)
	}
	return &s, nil
}

func (s *state) encode() (engine.GameData, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode game data: %w", err)
	}
	return engine.GameData(out), nil
}

// roll draws n dice deterministically from the seed and the running draw
// counter.
func (s *state) roll(n int) []int {
	rng := mathrand.New(mathrand.NewSource(s.Seed + int64(s.Draws)))
	s.Draws++
	dice := make([]int, n)
	for i := range dice {
		dice[i] = rng.Intn(6) + 1
	}
	return dice
}

// NewGame implements engine.Engine. The seed is the only entropy the game
// ever consumes.
func (f *Fivedice) NewGame() (engine.Setup, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return engine.Setup{}, fmt.Errorf("seed game: %w", err)
	}
	s := &state{
		Phase: phaseLobby,
		Seed:  int64(binary.LittleEndian.Uint64(raw[:]) &^ (1 << 63)),
		Cups:  make(map[string]*cup),
	}
	data, err := s.encode()
	if err != nil {
		return engine.Setup{}, err
	}
	return engine.Setup{
		PlayersMin: f.cfg.MinPlayers,
		PlayersMax: f.cfg.MaxPlayers,
		Data:       data,
	}, nil
}

// AddPlayer implements engine.Engine.
func (f *Fivedice) AddPlayer(data engine.GameData, userID string) (engine.GameData, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if s.Phase != phaseLobby {
		return nil, fmt.Errorf("cannot add player %s: game already underway", userID)
	}
	if _, ok := s.Cups[userID]; ok {
		return nil, fmt.Errorf("player %s already in game", userID)
	}
	s.Order = append(s.Order, userID)
	s.Cups[userID] = &cup{}
	return s.encode()
}

// RemovePlayer implements engine.Engine.
func (f *Fivedice) RemovePlayer(data engine.GameData, userID string) (engine.GameData, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if _, ok := s.Cups[userID]; !ok {
		return nil, fmt.Errorf("player %s not in game", userID)
	}
	delete(s.Cups, userID)
	for i, id := range s.Order {
		if id == userID {
			s.Order = append(s.Order[:i], s.Order[i+1:]...)
			break
		}
	}
	return s.encode()
}

// ToggleReady implements engine.Engine. Toggling for a user who never
// joined is a no-op rather than an error: readiness is advisory state and
// the session layer imposes no precondition on it.
func (f *Fivedice) ToggleReady(data engine.GameData, userID string) (engine.GameData, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if c, ok := s.Cups[userID]; ok && s.Phase == phaseLobby {
		c.Ready = !c.Ready
	}
	return s.encode()
}

// CheckReady implements engine.Engine: every joined player has readied up.
func (f *Fivedice) CheckReady(data engine.GameData) (bool, error) {
	s, err := decode(data)
	if err != nil {
		return false, err
	}
	if s.Phase != phaseLobby || len(s.Order) == 0 {
		return false, nil
	}
	for _, c := range s.Cups {
		if !c.Ready {
			return false, nil
		}
	}
	return true, nil
}

// StartGame implements engine.Engine: every cup gets its opening roll and
// the first joiner moves first.
func (f *Fivedice) StartGame(data engine.GameData) (engine.Turn, error) {
	s, err := decode(data)
	if err != nil {
		return engine.Turn{}, err
	}
	if s.Phase != phaseLobby {
		return engine.Turn{}, fmt.Errorf("game already started")
	}
	if len(s.Order) == 0 {
		return engine.Turn{}, fmt.Errorf("no players")
	}
	s.Phase = phasePlay
	s.Turn = 0
	for _, id := range s.Order {
		s.Cups[id].Dice = s.roll(f.cfg.Dice)
	}
	out, err := s.encode()
	if err != nil {
		return engine.Turn{}, err
	}
	return engine.Turn{Data: out, NextPlayerIDs: []string{s.Order[0]}}, nil
}

// Move is the wire shape of a Fivedice move.
type Move struct {
	// Action is "reroll" or "stand".
	Action string `json:"action"`
	// Keep lists the die indexes to keep on a reroll; everything else is
	// rolled again.
	Keep []int `json:"keep,omitempty"`
}

// MakeMove implements engine.Engine.
func (f *Fivedice) MakeMove(data engine.GameData, userID string, move json.RawMessage) (engine.Turn, error) {
	s, err := decode(data)
	if err != nil {
		return engine.Turn{}, err
	}
	if s.Phase != phasePlay {
		return engine.Turn{}, fmt.Errorf("game is not in play")
	}
	var m Move
	if err := json.Unmarshal(move, &m); err != nil {
		return engine.Turn{}, fmt.Errorf("decode move: %w", err)
	}
	c := s.Cups[userID]
	if c == nil {
		return engine.Turn{}, fmt.Errorf("player %s not in game", userID)
	}

	switch m.Action {
	case "reroll":
		if c.Rerolls >= f.cfg.RerollRounds {
			return engine.Turn{}, fmt.Errorf("no rerolls left")
		}
		keep := make(map[int]bool, len(m.Keep))
		for _, i := range m.Keep {
			if i < 0 || i >= len(c.Dice) {
				return engine.Turn{}, fmt.Errorf("keep index %d out of range", i)
			}
			keep[i] = true
		}
		fresh := s.roll(len(c.Dice) - len(keep))
		next := make([]int, 0, len(c.Dice))
		for i, d := range c.Dice {
			if keep[i] {
				next = append(next, d)
			}
		}
		next = append(next, fresh...)
		c.Dice = next
		c.Rerolls++
		if c.Rerolls >= f.cfg.RerollRounds {
			c.Stood = true
		}
	case "stand":
		c.Stood = true
	default:
		return engine.Turn{}, fmt.Errorf("unknown action %q", m.Action)
	}

	next := s.advance(userID)
	if len(next) == 0 {
		s.finish()
	}
	out, err := s.encode()
	if err != nil {
		return engine.Turn{}, err
	}
	return engine.Turn{Data: out, NextPlayerIDs: next}, nil
}

// advance hands the turn to the next player still rolling, starting after
// mover. Returns nil when every cup has stood.
func (s *state) advance(mover string) []string {
	if c := s.Cups[mover]; c != nil && !c.Stood {
		return []string{mover}
	}
	start := s.Turn
	for i := 1; i <= len(s.Order); i++ {
		idx := (start + i) % len(s.Order)
		if !s.Cups[s.Order[idx]].Stood {
			s.Turn = idx
			return []string{s.Order[idx]}
		}
	}
	return nil
}

// finish totals the cups and assigns places, ties sharing a place.
func (s *state) finish() {
	s.Phase = phaseDone
	type entry struct {
		id    string
		total int
	}
	entries := make([]entry, 0, len(s.Order))
	for _, id := range s.Order {
		c := s.Cups[id]
		c.Total = 0
		for _, d := range c.Dice {
			c.Total += d
		}
		entries = append(entries, entry{id: id, total: c.Total})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].total > entries[j].total })
	place := 0
	prev := -1
	for i, e := range entries {
		if e.total != prev {
			place = i + 1
			prev = e.total
		}
		s.Cups[e.id].Place = place
	}
}

// RedactForViewer implements engine.Engine: other players' dice and the
// seed stay hidden until the game is done.
func (f *Fivedice) RedactForViewer(data engine.GameData, viewerID string) (engine.GameData, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if s.Phase == phaseDone {
		return data, nil
	}
	s.Seed = 0
	s.Draws = 0
	for id, c := range s.Cups {
		if id == viewerID {
			continue
		}
		c.Dice = nil
		c.Total = 0
		c.Hidden = true
	}
	return s.encode()
}

// TerminalSummary implements engine.Engine.
func (f *Fivedice) TerminalSummary(data engine.GameData) ([]engine.Placement, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if s.Phase != phaseDone {
		return nil, fmt.Errorf("game has not finished")
	}
	summary := make([]engine.Placement, 0, len(s.Order))
	for _, id := range s.Order {
		summary = append(summary, engine.Placement{UserID: id, Place: s.Cups[id].Place})
	}
	sort.SliceStable(summary, func(i, j int) bool { return summary[i].Place < summary[j].Place })
	return summary, nil
}
