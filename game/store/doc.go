// Package store provides the persistence collaborators behind the session
// state machine: an in-memory store for tests and single-process runs, and
// a sqlite-backed store for durable deployments. Both satisfy
// session.Store and session.UserStore.
package store
