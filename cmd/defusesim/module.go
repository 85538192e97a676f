package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/defuse-core/internal/module"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

// behaviour is how a simulated player treats one module.
type behaviour struct {
	// SolveWindow bounds how long a regular module takes to solve. The
	// actual time is drawn from the upper half of the window.
	SolveWindow time.Duration

	// StrikeChance is the probability of a mistake per second of play.
	StrikeChance float64

	// Step is how often the module polls the bus.
	Step time.Duration
}

// simModule drives a module.Module like a player would.
type simModule struct {
	mod *module.Module
	rng *rand.Rand
	cfg behaviour

	solveAt   time.Time
	nextRoll  time.Time
	needyDue  time.Time
	needyOpen bool
}

func newSimModule(opts module.Options, rng *rand.Rand, cfg behaviour) (*simModule, error) {
	s := &simModule{rng: rng, cfg: cfg}
	opts.Handlers = module.Handlers{
		OnNeedyActivate: func(interval time.Duration) {
			// Deal with it somewhere in the first half of its interval.
			s.needyOpen = true
			s.needyDue = time.Now().Add(s.jitter(interval / 2))
		},
		OnReset: func() {
			s.solveAt = time.Time{}
			s.needyOpen = false
		},
	}
	mod, err := module.New(opts)
	if err != nil {
		return nil, err
	}
	s.mod = mod
	return s, nil
}

func (s *simModule) run(ctx context.Context) error {
	if _, err := s.mod.Start(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(s.cfg.Step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.mod.Step()
			s.act(now)
		}
	}
}

func (s *simModule) act(now time.Time) {
	if !s.mod.View().Running {
		return
	}
	switch s.mod.Type().Category() {
	case protocol.CategoryRegular:
		if s.mod.Report().Solved {
			return
		}
		if s.solveAt.IsZero() {
			s.solveAt = now.Add(s.cfg.SolveWindow/2 + s.jitter(s.cfg.SolveWindow/2))
			s.nextRoll = now.Add(time.Second)
		}
		if !now.Before(s.nextRoll) {
			s.nextRoll = now.Add(time.Second)
			if s.rng.Float64() < s.cfg.StrikeChance {
				s.mod.Strike() //nolint:errcheck // started above
			}
		}
		if !now.Before(s.solveAt) {
			s.mod.Solve() //nolint:errcheck // started above
		}
	case protocol.CategoryNeedy:
		if s.needyOpen && !now.Before(s.needyDue) {
			s.needyOpen = false
			s.mod.Solve() //nolint:errcheck // started above
		}
	}
}

func (s *simModule) jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(s.rng.Int64N(int64(limit)))
}
