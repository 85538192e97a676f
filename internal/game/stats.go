package game

import "time"

// Outcome is how a game ended.
type Outcome string

// Game outcomes.
const (
	OutcomeNone     Outcome = ""
	OutcomeDefused  Outcome = "defused"
	OutcomeExploded Outcome = "exploded"
	OutcomeVictory  Outcome = "victory"
	OutcomeAborted  Outcome = "aborted"
)

// Stats is the running tally for the current game.
type Stats struct {
	StartedAt        time.Time     `json:"started_at,omitzero"`
	EndedAt          time.Time     `json:"ended_at,omitzero"`
	Outcome          Outcome       `json:"outcome,omitempty"`
	StrikesIncurred  int           `json:"strikes_incurred"`
	ModulesSolved    int           `json:"modules_solved"`
	ModulesTotal     int           `json:"modules_total"`
	NeedyActivations int           `json:"needy_activations"`
	TimeRemaining    time.Duration `json:"time_remaining"`
	Pauses           int           `json:"pauses"`
	PausedFor        time.Duration `json:"paused_for"`
}

// Started reports whether the game reached Running.
func (s Stats) Started() bool { return !s.StartedAt.IsZero() }

// Ended reports whether the game has closed.
func (s Stats) Ended() bool { return !s.EndedAt.IsZero() }

// Duration returns the wall-clock length of the game so far.
func (s Stats) Duration(now time.Time) time.Duration {
	if !s.Started() {
		return 0
	}
	if s.Ended() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

func outcomeFor(s State) Outcome {
	switch s {
	case StateDefused:
		return OutcomeDefused
	case StateExploded:
		return OutcomeExploded
	case StateVictory:
		return OutcomeVictory
	}
	return OutcomeNone
}
