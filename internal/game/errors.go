package game

import "errors"

// Domain errors for the game package.
var (
	// ErrInvalidTransition is returned when an operator command is not
	// accepted in the current state.
	ErrInvalidTransition = errors.New("game: invalid transition")

	// ErrGameOver is returned when a command needs a game that has not
	// already ended.
	ErrGameOver = errors.New("game: game is over")

	// ErrUnknownCommand is returned for unrecognised operator commands.
	ErrUnknownCommand = errors.New("game: unknown command")

	// ErrStopped is returned by Runner.Do once the loop has exited.
	ErrStopped = errors.New("game: orchestrator stopped")
)
