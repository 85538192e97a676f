// Package history keeps a SQLite record of every game played: one games
// row per game with its final snapshot (CBOR), plus a game_events log of
// state changes, strikes and solves.
//
// A Recorder plugs into the orchestrator through game.Hooks. The hooks
// run on the game loop, so they only enqueue; Recorder.Run does the
// writes on its own goroutine and drops records (counted) rather than
// block the loop when the queue is full.
package history
