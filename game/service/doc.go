// Package service fronts the session state machine for the transports. It
// owns the projection rules: viewers get engine-redacted game state while a
// game is running and the full state once it finishes, and public list
// views carry no watchers, logs, or game state at all.
package service
