package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores for session ids they have no record of.
var ErrNotFound = errors.New("session not found")

// Kind classifies a session transition failure.
type Kind string

const (
	KindUnknownGameType Kind = "unknown_game_type"
	KindNotFound        Kind = "session_not_found"
	KindJoin            Kind = "join"
	KindOpen            Kind = "open"
	KindWatch           Kind = "watch"
	KindLeave           Kind = "leave"
	KindClose           Kind = "close"
	KindStart           Kind = "start"
	KindMove            Kind = "move"
	// KindEngine wraps failures coming out of a rules engine call. The
	// session is left unmodified; the process keeps running.
	KindEngine Kind = "engine"
)

// Error is a typed transition failure: which action was attempted and a
// human-readable reason. Business-rule failures are deterministic given
// unchanged state, so callers must not retry them.
type Error struct {
	Kind   Kind
	Action string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Action, e.Err)
	}
	return e.Action
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a session Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

func fail(kind Kind, action, reason string) *Error {
	return &Error{Kind: kind, Action: action, Reason: reason}
}

func engineFailure(action string, err error) *Error {
	return &Error{Kind: KindEngine, Action: action, Reason: "engine failure", Err: err}
}
