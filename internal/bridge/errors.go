package bridge

import "errors"

var (
	// ErrInvalidCommand is returned for command payloads that cannot be
	// turned into a game command.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrMissingDependency is returned by New when a required option is nil.
	ErrMissingDependency = errors.New("bridge: missing dependency")
)

// Ack error codes.
const (
	ErrCodeInvalidCommand    = "invalid_command"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeGameOver          = "game_over"
	ErrCodeUnavailable       = "unavailable"
	ErrCodeInternal          = "internal_error"
)
