package game

import (
	"time"

	"github.com/nerrad567/defuse-core/internal/registry"
)

// Snapshot is an immutable copy of the orchestrator state for readers
// outside the loop goroutine.
type Snapshot struct {
	// Seq increases every time a snapshot is published.
	Seq uint64 `json:"seq"`

	State          State     `json:"state"`
	StateEnteredAt time.Time `json:"state_entered_at"`

	TimeLimitMs  int64   `json:"time_limit_ms"`
	RemainingMs  int64   `json:"remaining_ms"`
	TimerRunning bool    `json:"timer_running"`
	Multiplier   float64 `json:"multiplier"`

	Strikes    int `json:"strikes"`
	MaxStrikes int `json:"max_strikes"`

	Serial   string   `json:"serial"`
	Edgework Edgework `json:"edgework"`

	// Countdown is the pre-start countdown in seconds, zero when inactive.
	Countdown int `json:"countdown"`

	Counts  registry.Counts   `json:"counts"`
	Modules []registry.Record `json:"modules"`
	Stats   Stats             `json:"stats"`

	TakenAt time.Time `json:"taken_at"`
}

// Remaining returns the remaining time as a duration.
func (s Snapshot) Remaining() time.Duration {
	return time.Duration(s.RemainingMs) * time.Millisecond
}

// Module returns the record for the module at addr in the snapshot.
func (s Snapshot) Module(addr string) (registry.Record, bool) {
	for _, m := range s.Modules {
		if m.Address.String() == addr {
			return m, true
		}
	}
	return registry.Record{}, false
}
