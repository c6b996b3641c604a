package engine

import (
	"fmt"
	"sort"
)

// Registry maps game-type keys to their engines. It is populated once at
// process start and read-only afterwards, so lookups need no locking.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry builds a registry from the given engines, keyed by their
// Name(). Registering two engines under the same key is a wiring bug and
// fails loudly.
func NewRegistry(engines ...Engine) (*Registry, error) {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		if _, dup := r.engines[e.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, e.Name())
		}
		r.engines[e.Name()] = e
	}
	return r, nil
}

// Get returns the engine for gameType or ErrUnknownGameType.
func (r *Registry) Get(gameType string) (Engine, error) {
	e, ok := r.engines[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, gameType)
	}
	return e, nil
}

// Names returns the registered game-type keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
