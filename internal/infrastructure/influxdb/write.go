package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementGame  = "game"
	MeasurementBus   = "bus"
	MeasurementEvent = "game_event"
)

// GameSample is one periodic reading of the orchestrator.
type GameSample struct {
	Bomb        string
	State       string
	Strikes     int
	MaxStrikes  int
	Remaining   time.Duration
	Multiplier  float64
	Solved      int
	Total       int
	ActiveNeedy int
	Online      int
	At          time.Time
}

// BusSample is one reading of the bus port counters.
type BusSample struct {
	Bomb       string
	Transport  string
	Received   uint64
	Delivered  uint64
	Sent       uint64
	Filtered   uint64
	Malformed  uint64
	Overflow   uint64
	SendErrors uint64
	Pending    int
	At         time.Time
}

// WriteGame records a game sample, tagged by bomb and state.
func (c *Client) WriteGame(s GameSample) {
	c.writePoint(write.NewPoint(MeasurementGame,
		map[string]string{"bomb": s.Bomb, "state": s.State},
		map[string]any{
			"strikes":      s.Strikes,
			"max_strikes":  s.MaxStrikes,
			"remaining_ms": s.Remaining.Milliseconds(),
			"multiplier":   s.Multiplier,
			"solved":       s.Solved,
			"total":        s.Total,
			"active_needy": s.ActiveNeedy,
			"online":       s.Online,
		},
		stamp(s.At)))
}

// WriteBus records bus traffic counters.
func (c *Client) WriteBus(s BusSample) {
	c.writePoint(write.NewPoint(MeasurementBus,
		map[string]string{"bomb": s.Bomb, "transport": s.Transport},
		map[string]any{
			"received":    s.Received,
			"delivered":   s.Delivered,
			"sent":        s.Sent,
			"filtered":    s.Filtered,
			"malformed":   s.Malformed,
			"overflow":    s.Overflow,
			"send_errors": s.SendErrors,
			"pending":     s.Pending,
		},
		stamp(s.At)))
}

// WriteEvent records a discrete game event such as a strike or a solve.
func (c *Client) WriteEvent(bomb, kind, detail string, at time.Time) {
	c.writePoint(write.NewPoint(MeasurementEvent,
		map[string]string{"bomb": bomb, "kind": kind},
		map[string]any{"detail": detail},
		stamp(at)))
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
