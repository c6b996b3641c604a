// Package session holds the session lifecycle state machine, the heart of
// the server.
//
// A Session moves through Lobby → Started → Finished, mutated exclusively
// by the Machine's named transitions (join, open, watch, leave, close,
// toggle-ready, start, make-move). Each transition validates its
// preconditions against the loaded session, delegates game semantics to the
// rules engine, merges the result, and persists — all inside a per-session-id
// critical section so concurrent actions on one session serialize while
// unrelated sessions proceed in parallel.
//
// Transitions are all-or-nothing: validation runs to completion before any
// mutation, and the engine operates on a private clone, so a failure at any
// point leaves the persisted session untouched.
package session
