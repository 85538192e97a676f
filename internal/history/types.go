package history

import (
	"context"
	"time"

	"github.com/nerrad567/defuse-core/internal/game"
)

// Event kinds stored in game_events.
const (
	EventStart  = "start"
	EventState  = "state"
	EventStrike = "strike"
	EventSolved = "solved"
	EventEnd    = "end"
)

// Game is one row of the games table.
type Game struct {
	ID            string     `json:"id"`
	Serial        string     `json:"serial"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Outcome       string     `json:"outcome"`
	Strikes       int        `json:"strikes"`
	MaxStrikes    int        `json:"max_strikes"`
	TimeLimitMs   int64      `json:"time_limit_ms"`
	RemainingMs   int64      `json:"remaining_ms"`
	ModulesTotal  int        `json:"modules_total"`
	ModulesSolved int        `json:"modules_solved"`

	// Snapshot is the final game state, present once the game has ended
	// and only when loaded by GetGame.
	Snapshot *game.Snapshot `json:"snapshot,omitempty"`
}

// Finished reports whether the game has an end time.
func (g *Game) Finished() bool {
	return g.EndedAt != nil
}

// Event is one row of the game_events table.
type Event struct {
	ID     int64     `json:"id"`
	GameID string    `json:"game_id"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Filter controls ListGames.
type Filter struct {
	Outcome string // optional exact match
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is one page of games, newest first.
type ListResult struct {
	Games  []Game `json:"games"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Repository stores finished and in-progress games.
type Repository interface {
	CreateGame(ctx context.Context, g *Game) error
	FinishGame(ctx context.Context, g *Game) error
	AddEvent(ctx context.Context, e *Event) error
	GetGame(ctx context.Context, id string) (*Game, error)
	ListGames(ctx context.Context, filter Filter) (*ListResult, error)
	Events(ctx context.Context, gameID string) ([]Event, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// gameFromSnapshot fills a Game from an orchestrator snapshot.
func gameFromSnapshot(id string, snap game.Snapshot) *Game {
	g := &Game{
		ID:            id,
		Serial:        snap.Serial,
		StartedAt:     snap.Stats.StartedAt,
		Outcome:       string(snap.Stats.Outcome),
		Strikes:       snap.Strikes,
		MaxStrikes:    snap.MaxStrikes,
		TimeLimitMs:   snap.TimeLimitMs,
		RemainingMs:   snap.RemainingMs,
		ModulesTotal:  snap.Counts.RegularTotal,
		ModulesSolved: snap.Counts.RegularSolved,
	}
	if g.StartedAt.IsZero() {
		g.StartedAt = snap.TakenAt
	}
	if snap.Stats.Ended() {
		ended := snap.Stats.EndedAt
		g.EndedAt = &ended
		s := snap
		g.Snapshot = &s
	}
	return g
}
