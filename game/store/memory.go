package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tablezoo/tablezoo/game/session"
)

// Memory is an in-process store. Sessions are kept as snapshots: Save and
// Load clone, so callers never alias the stored object.
type Memory struct {
	mu       sync.RWMutex
	sessions map[int64]*session.Session
	users    map[string]session.UserStats
	nextID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[int64]*session.Session),
		users:    make(map[string]session.UserStats),
	}
}

// Load implements session.Store.
func (m *Memory) Load(_ context.Context, id int64) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess.Clone(), nil
}

// Save implements session.Store. A zero id allocates the next one.
func (m *Memory) Save(_ context.Context, sess *session.Session) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := sess.Clone()
	if stored.ID == 0 {
		m.nextID++
		stored.ID = m.nextID
	} else if stored.ID > m.nextID {
		m.nextID = stored.ID
	}
	m.sessions[stored.ID] = stored
	return stored.Clone(), nil
}

// List implements session.Store, newest first.
func (m *Memory) List(_ context.Context) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// User implements session.UserStore. Unknown users have zero counters.
func (m *Memory) User(_ context.Context, userID string) (session.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats, ok := m.users[userID]
	if !ok {
		return session.UserStats{UserID: userID}, nil
	}
	return stats, nil
}

// SaveCounters implements session.UserStore.
func (m *Memory) SaveCounters(_ context.Context, stats session.UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[stats.UserID] = stats
	return nil
}
