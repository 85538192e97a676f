package game

import "time"

// Hooks are synchronous notifications from the orchestrator loop. Every
// field is optional. Hooks run on the loop goroutine and must not block;
// consumers that do I/O should hand off to their own queue.
type Hooks struct {
	// OnStateChange fires exactly once per transition, in order.
	OnStateChange func(old, new State)

	// OnStrikeChange fires whenever the strike count changes.
	OnStrikeChange func(strikes, max int)

	// OnModuleSolved fires on the first solve of a counted Regular module.
	OnModuleSolved func(solved, total int)

	// OnTimeUpdate fires once per whole second of remaining time.
	OnTimeUpdate func(remaining time.Duration)

	// OnGameStarted fires after the Running state is first entered for a game.
	OnGameStarted func(snap Snapshot)

	// OnGameEnded fires after a terminal state is entered, or when a game
	// that had started is reset.
	OnGameEnded func(snap Snapshot)
}

// MultiHooks fans each notification out to every hook set in order.
func MultiHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnStateChange: func(old, new State) {
			for _, h := range hooks {
				if h.OnStateChange != nil {
					h.OnStateChange(old, new)
				}
			}
		},
		OnStrikeChange: func(strikes, max int) {
			for _, h := range hooks {
				if h.OnStrikeChange != nil {
					h.OnStrikeChange(strikes, max)
				}
			}
		},
		OnModuleSolved: func(solved, total int) {
			for _, h := range hooks {
				if h.OnModuleSolved != nil {
					h.OnModuleSolved(solved, total)
				}
			}
		},
		OnTimeUpdate: func(remaining time.Duration) {
			for _, h := range hooks {
				if h.OnTimeUpdate != nil {
					h.OnTimeUpdate(remaining)
				}
			}
		},
		OnGameStarted: func(snap Snapshot) {
			for _, h := range hooks {
				if h.OnGameStarted != nil {
					h.OnGameStarted(snap)
				}
			}
		},
		OnGameEnded: func(snap Snapshot) {
			for _, h := range hooks {
				if h.OnGameEnded != nil {
					h.OnGameEnded(snap)
				}
			}
		},
	}
}
