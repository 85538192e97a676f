package game

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/defuse-core/internal/bus"
)

// Inbox is the receive side of the orchestrator's bus port.
type Inbox interface {
	Poll() (bus.Received, bool)
}

type request struct {
	cmd   Command
	reply chan error
}

// Runner owns an Orchestrator on a single goroutine. Bus messages,
// operator commands and ticks are all applied from Run, so the
// orchestrator itself needs no locking.
type Runner struct {
	orch     *Orchestrator
	inbox    Inbox
	commands chan request
	done     chan struct{}
	snap     atomic.Pointer[Snapshot]
}

// NewRunner creates a runner. The orchestrator must not be used directly
// once Run has started.
func NewRunner(orch *Orchestrator, inbox Inbox) *Runner {
	r := &Runner{
		orch:     orch,
		inbox:    inbox,
		commands: make(chan request),
		done:     make(chan struct{}),
	}
	r.publish()
	return r
}

// Run announces the game and loops until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	r.orch.Begin()
	r.publish()

	ticker := time.NewTicker(r.orch.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-r.commands:
			r.drain()
			req.reply <- r.orch.Execute(req.cmd)
			r.publish()

		case <-ticker.C:
			r.drain()
			r.orch.Tick()
			r.publish()
		}
	}
}

// drain applies every message waiting on the bus.
func (r *Runner) drain() {
	for {
		rcv, ok := r.inbox.Poll()
		if !ok {
			return
		}
		r.orch.HandleMessage(rcv.Message)
	}
}

func (r *Runner) publish() {
	snap := r.orch.Snapshot()
	r.snap.Store(&snap)
}

// Do runs cmd on the loop goroutine and returns its result.
func (r *Runner) Do(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case r.commands <- req:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the most recently published state. Safe for
// concurrent use.
func (r *Runner) Snapshot() Snapshot {
	return *r.snap.Load()
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
