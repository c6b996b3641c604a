// Package engine defines the contract between the session state machine and
// the per-game-type rules engines.
//
// An Engine knows the rules of exactly one game. It operates on an opaque
// GameData blob plus participant identifiers and never touches session
// bookkeeping (player lists, online status, counters) — that belongs to the
// session package. Every Engine method must be deterministic given its
// inputs and must keep all per-game scratch state inside the blob, so one
// engine value can safely serve many concurrent sessions.
package engine
