// Package game implements the bomb's game orchestrator: the state machine
// run by the timer unit.
//
// States:
//
//	Discovery --confirm--> Idle --start--> Running <--pause/resume--> Paused
//	                                         |
//	                                         +--> Exploded (time out / strikes)
//	                                         +--> Defused  (all regular solved)
//	any --reset--> Discovery
//
// Victory exists as a state but is never entered automatically.
//
// The Orchestrator is single-threaded. A Runner owns it on one goroutine,
// draining the bus, applying operator commands and ticking the timer, and
// publishes immutable Snapshots for concurrent readers.
//
// Timer acceleration: each tick subtracts elapsed*(1 + k*strikes) from the
// remaining time, clamping at zero.
package game
