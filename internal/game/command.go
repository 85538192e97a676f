package game

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// Op is an operator command.
type Op string

// Operator commands.
const (
	OpConfirm    Op = "confirm"
	OpStart      Op = "start"
	OpPause      Op = "pause"
	OpResume     Op = "resume"
	OpReset      Op = "reset"
	OpStrike     Op = "strike"
	OpSetStrikes Op = "set_strikes"
	OpSolve      Op = "solve"
	OpSetTime    Op = "set_time"
)

// MaxRemainingMs is the largest remaining time, in milliseconds, that fits
// a time.Duration.
const MaxRemainingMs = math.MaxInt64 / int64(time.Millisecond)

var ops = []Op{OpConfirm, OpStart, OpPause, OpResume, OpReset, OpStrike, OpSetStrikes, OpSolve, OpSetTime}

// ParseOp parses a command name, case-insensitively.
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, op := range ops {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Command is one operator request. Only the fields the Op needs are read.
type Command struct {
	Op Op

	// Strikes is the target for OpSetStrikes.
	Strikes int

	// Module is the target for OpSolve.
	Module protocol.Address

	// Remaining is the target for OpSetTime.
	Remaining time.Duration
}

// Execute applies cmd to the orchestrator.
func (o *Orchestrator) Execute(cmd Command) error {
	switch cmd.Op {
	case OpConfirm:
		return o.ConfirmModules()
	case OpStart:
		return o.Start()
	case OpPause:
		return o.Pause()
	case OpResume:
		return o.Resume()
	case OpReset:
		o.Reset()
		return nil
	case OpStrike:
		return o.AddStrike()
	case OpSetStrikes:
		return o.SetStrikes(cmd.Strikes)
	case OpSolve:
		return o.SetModuleSolved(cmd.Module)
	case OpSetTime:
		return o.SetTimeRemaining(cmd.Remaining)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Op)
}
