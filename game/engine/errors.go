package engine

import "errors"

var (
	// ErrUnknownGameType is returned by the registry for game-type keys
	// that were never registered.
	ErrUnknownGameType = errors.New("unknown game type")

	// ErrAlreadyRegistered guards against two engines claiming one key.
	ErrAlreadyRegistered = errors.New("game type already registered")

	// ErrMalformedData is returned by engines handed a blob they cannot
	// decode.
	ErrMalformedData = errors.New("malformed game data")
)
