package session

import "sync"

// keyedLocks hands out one mutex per session id so that actions on the same
// session serialize while unrelated sessions run fully in parallel. Entries
// are reference-counted and dropped when the last holder releases, keeping
// the map bounded by the number of in-flight actions.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[int64]*lockEntry)}
}

// acquire blocks until the caller owns the lock for id and returns the
// release function. Release must be called on every exit path.
func (l *keyedLocks) acquire(id int64) (release func()) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
