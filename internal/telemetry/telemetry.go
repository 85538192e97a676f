// Package telemetry samples the running game into a time-series writer.
//
// A Sampler reads the published snapshot and the bus counters on a fixed
// interval and writes one point per reading. Game hooks add discrete event
// points for state changes, strikes and solves.
//
//	s := telemetry.New(telemetry.Options{Writer: influx, Game: runner, Bus: port, Bomb: "bomb-01"})
//	orch.AddHooks(s.Hooks())
//	go s.Run(ctx)
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/infrastructure/influxdb"
)

const defaultInterval = time.Second

// Writer is satisfied by *influxdb.Client.
type Writer interface {
	WriteGame(s influxdb.GameSample)
	WriteBus(s influxdb.BusSample)
	WriteEvent(bomb, kind, detail string, at time.Time)
}

// SnapshotSource is satisfied by *game.Runner.
type SnapshotSource interface {
	Snapshot() game.Snapshot
}

// BusStats is satisfied by *bus.Port.
type BusStats interface {
	Stats() bus.Stats
}

// Options configures New.
type Options struct {
	Writer    Writer
	Game      SnapshotSource
	Bus       BusStats // optional
	Bomb      string
	Transport string
	Interval  time.Duration
	Now       func() time.Time
}

// Sampler writes periodic game and bus readings.
type Sampler struct {
	w         Writer
	game      SnapshotSource
	bus       BusStats
	bomb      string
	transport string
	interval  time.Duration
	now       func() time.Time

	lastSeq uint64
	samples atomic.Uint64
}

// New returns a sampler. Writer and Game are required.
func New(opts Options) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sampler{
		w:         opts.Writer,
		game:      opts.Game,
		bus:       opts.Bus,
		bomb:      opts.Bomb,
		transport: opts.Transport,
		interval:  opts.Interval,
		now:       opts.Now,
	}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Sample writes one reading. The game point is skipped while nothing has
// changed and the timer is stopped.
func (s *Sampler) Sample() {
	now := s.now()
	snap := s.game.Snapshot()

	if snap.Seq != s.lastSeq || snap.TimerRunning {
		s.lastSeq = snap.Seq
		s.w.WriteGame(influxdb.GameSample{
			Bomb:        s.bomb,
			State:       snap.State.String(),
			Strikes:     snap.Strikes,
			MaxStrikes:  snap.MaxStrikes,
			Remaining:   snap.Remaining(),
			Multiplier:  snap.Multiplier,
			Solved:      snap.Counts.RegularSolved,
			Total:       snap.Counts.RegularTotal,
			ActiveNeedy: snap.Counts.ActiveNeedy,
			Online:      snap.Counts.Online,
			At:          now,
		})
		s.samples.Add(1)
	}

	if s.bus != nil {
		st := s.bus.Stats()
		s.w.WriteBus(influxdb.BusSample{
			Bomb:       s.bomb,
			Transport:  s.transport,
			Received:   st.Received,
			Delivered:  st.Delivered,
			Sent:       st.Sent,
			Filtered:   st.Filtered,
			Malformed:  st.Malformed,
			Overflow:   st.Overflow,
			SendErrors: st.SendErrors,
			Pending:    st.Pending,
			At:         now,
		})
	}
}

// Samples returns how many game points have been written.
func (s *Sampler) Samples() uint64 {
	return s.samples.Load()
}

// Hooks returns orchestrator hooks that write event points. The writer
// must not block.
func (s *Sampler) Hooks() game.Hooks {
	return game.Hooks{
		OnStateChange: func(old, new game.State) {
			s.w.WriteEvent(s.bomb, "state", old.String()+"->"+new.String(), s.now())
		},
		OnStrikeChange: func(strikes, max int) {
			s.w.WriteEvent(s.bomb, "strike", fmt.Sprintf("%d/%d", strikes, max), s.now())
		},
		OnModuleSolved: func(solved, total int) {
			s.w.WriteEvent(s.bomb, "solved", fmt.Sprintf("%d/%d", solved, total), s.now())
		},
	}
}
