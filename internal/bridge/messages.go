package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

// CommandMessage is an operator command received on {prefix}/command.
//
//	{"id": "c1", "command": "set_strikes", "strikes": 2}
//	{"command": "solve", "module": "0x201"}
//	{"command": "set_time", "remaining_ms": 90000}
type CommandMessage struct {
	ID          string    `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	Command     string    `json:"command"`
	Strikes     *int      `json:"strikes,omitempty"`
	RemainingMs *int64    `json:"remaining_ms,omitempty"`
	Module      string    `json:"module,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// ToCommand validates the message and converts it to a game command.
func (m CommandMessage) ToCommand() (game.Command, error) {
	op, err := game.ParseOp(m.Command)
	if err != nil {
		return game.Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd := game.Command{Op: op}

	switch op {
	case game.OpSetStrikes:
		if m.Strikes == nil {
			return game.Command{}, fmt.Errorf("%w: set_strikes needs strikes", ErrInvalidCommand)
		}
		cmd.Strikes = *m.Strikes
	case game.OpSetTime:
		if m.RemainingMs == nil || *m.RemainingMs < 0 || *m.RemainingMs > game.MaxRemainingMs {
			return game.Command{}, fmt.Errorf("%w: set_time needs remaining_ms between 0 and %d", ErrInvalidCommand, game.MaxRemainingMs)
		}
		cmd.Remaining = time.Duration(*m.RemainingMs) * time.Millisecond
	case game.OpSolve:
		addr, err := protocol.ParseAddress(m.Module)
		if err != nil {
			return game.Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		cmd.Module = addr
	}
	return cmd, nil
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage is published on {prefix}/command/ack for every command.
type AckMessage struct {
	CommandID string    `json:"command_id,omitempty"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	State     string    `json:"state"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError details a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps a command error to its ack code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, game.ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, game.ErrInvalidTransition):
		return ErrCodeInvalidTransition
	case errors.Is(err, game.ErrGameOver):
		return ErrCodeGameOver
	case errors.Is(err, game.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeUnavailable
	default:
		return ErrCodeInternal
	}
}

// EventMessage is published on {prefix}/event/{kind}.
type EventMessage struct {
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Strikes    *int      `json:"strikes,omitempty"`
	MaxStrikes *int      `json:"max_strikes,omitempty"`
	Solved     *int      `json:"solved,omitempty"`
	Total      *int      `json:"total,omitempty"`
	Remaining  *int64    `json:"remaining_ms,omitempty"`
}

func intPtr(v int) *int { return &v }
