package game

import "fmt"

// State is the orchestrator's game state.
type State uint8

// Game states.
const (
	// StateDiscovery collects module registrations. Initial state.
	StateDiscovery State = iota
	// StateIdle has a frozen roster and waits for the operator to start.
	StateIdle
	// StateRunning counts down.
	StateRunning
	// StatePaused has the countdown frozen.
	StatePaused
	// StateExploded is terminal: time ran out or strikes hit the limit.
	StateExploded
	// StateDefused is terminal: every regular module was solved.
	StateDefused
	// StateVictory is reserved and never entered automatically.
	StateVictory
)

var stateNames = [...]string{"discovery", "idle", "running", "paused", "exploded", "defused", "victory"}

// String returns the lower-case state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state_%d", uint8(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i) //nolint:gosec // bounded by stateNames
			return nil
		}
	}
	return fmt.Errorf("game: unknown state %q", text)
}

// IsTerminal reports whether the state ends the game.
func (s State) IsTerminal() bool {
	return s == StateExploded || s == StateDefused || s == StateVictory
}
