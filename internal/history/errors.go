package history

import "errors"

var (
	// ErrGameNotFound is returned when no game row has the requested ID.
	ErrGameNotFound = errors.New("history: game not found")

	// ErrInvalidGame is returned for rows missing required fields.
	ErrInvalidGame = errors.New("history: invalid game")
)
