package history

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/defuse-core/internal/game"
)

const (
	defaultQueueSize = 256
	drainTimeout     = 5 * time.Second
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type jobKind int

const (
	jobStart jobKind = iota
	jobEvent
	jobEnd
)

type job struct {
	kind   jobKind
	snap   game.Snapshot
	at     time.Time
	event  string
	detail string
}

// Recorder persists games from orchestrator hooks. Hooks only enqueue;
// Run owns the repository and performs every write.
type Recorder struct {
	repo   Repository
	jobs   chan job
	logger Logger
	now    func() time.Time
	newID  func() string

	dropped atomic.Uint64
	written atomic.Uint64

	// Owned by Run.
	current string
}

// RecorderOptions configures NewRecorder. Zero values pick defaults.
type RecorderOptions struct {
	QueueSize int
	Logger    Logger
	Now       func() time.Time
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		repo:   repo,
		jobs:   make(chan job, opts.QueueSize),
		logger: opts.Logger,
		now:    opts.Now,
		newID:  uuid.NewString,
	}
}

// Hooks returns the orchestrator hooks that feed this recorder.
func (r *Recorder) Hooks() game.Hooks {
	return game.Hooks{
		OnGameStarted: func(snap game.Snapshot) {
			r.enqueue(job{kind: jobStart, snap: snap})
		},
		OnStateChange: func(old, new game.State) {
			// Fires before OnGameStarted; start writes it once the row exists.
			if old == game.StateIdle && new == game.StateRunning {
				return
			}
			r.enqueue(job{kind: jobEvent, event: EventState, detail: stateDetail(old, new)})
		},
		OnStrikeChange: func(strikes, max int) {
			r.enqueue(job{kind: jobEvent, event: EventStrike, detail: fmt.Sprintf("%d/%d", strikes, max)})
		},
		OnModuleSolved: func(solved, total int) {
			r.enqueue(job{kind: jobEvent, event: EventSolved, detail: fmt.Sprintf("%d/%d", solved, total)})
		},
		OnGameEnded: func(snap game.Snapshot) {
			r.enqueue(job{kind: jobEnd, snap: snap})
		},
	}
}

func (r *Recorder) enqueue(j job) {
	if j.at.IsZero() {
		j.at = r.now().UTC()
	}
	select {
	case r.jobs <- j:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("history queue full, dropping record", "kind", j.kind, "dropped", n)
	}
}

// Dropped returns how many records were lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many records reached the repository.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Run writes queued records until ctx is cancelled, then drains whatever
// is still queued before returning.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case j := <-r.jobs:
			r.apply(ctx, j)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case j := <-r.jobs:
			r.apply(ctx, j)
		default:
			return
		}
	}
}

func (r *Recorder) apply(ctx context.Context, j job) {
	var err error
	switch j.kind {
	case jobStart:
		err = r.start(ctx, j)
	case jobEvent:
		if r.current == "" {
			return
		}
		err = r.repo.AddEvent(ctx, &Event{GameID: r.current, At: j.at, Kind: j.event, Detail: j.detail})
	case jobEnd:
		err = r.end(ctx, j)
	}
	if err != nil {
		r.logger.Error("history write failed", "game", r.current, "error", err)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) start(ctx context.Context, j job) error {
	if r.current != "" {
		// The previous game never reported an end.
		r.logger.Warn("history: game left open", "game", r.current)
	}
	g := gameFromSnapshot(r.newID(), j.snap)
	if g.StartedAt.IsZero() {
		g.StartedAt = j.at
	}
	if err := r.repo.CreateGame(ctx, g); err != nil {
		return err
	}
	r.current = g.ID
	r.logger.Info("game recorded", "game", g.ID, "serial", g.Serial)
	if err := r.repo.AddEvent(ctx, &Event{GameID: g.ID, At: g.StartedAt, Kind: EventStart, Detail: g.Serial}); err != nil {
		return err
	}
	return r.repo.AddEvent(ctx, &Event{GameID: g.ID, At: g.StartedAt, Kind: EventState, Detail: stateDetail(game.StateIdle, game.StateRunning)})
}

func stateDetail(old, new game.State) string {
	return old.String() + "->" + new.String()
}

func (r *Recorder) end(ctx context.Context, j job) error {
	if r.current == "" {
		return nil
	}
	id := r.current
	r.current = ""

	g := gameFromSnapshot(id, j.snap)
	if g.EndedAt == nil {
		at := j.at
		g.EndedAt = &at
	}
	if g.Snapshot == nil {
		s := j.snap
		g.Snapshot = &s
	}
	if err := r.repo.AddEvent(ctx, &Event{GameID: id, At: *g.EndedAt, Kind: EventEnd, Detail: g.Outcome}); err != nil {
		return err
	}
	return r.repo.FinishGame(ctx, g)
}

// Current returns the ID of the game being recorded. Only meaningful from
// the Run goroutine or after Run has returned.
func (r *Recorder) Current() string { return r.current }
