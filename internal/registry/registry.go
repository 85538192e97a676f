package registry

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// DefaultLivenessTimeout marks a module offline after 5s of silence.
const DefaultLivenessTimeout = 5 * time.Second

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks every module heard on the bus.
//
// A Registry is owned by the orchestrator loop and is not safe for
// concurrent use. Methods that return records return deep copies.
type Registry struct {
	records  map[protocol.Address]*Record
	liveness time.Duration
	frozen   bool
	logger   Logger
}

// New creates an empty registry. A non-positive timeout selects
// DefaultLivenessTimeout.
func New(livenessTimeout time.Duration) *Registry {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
	}
	return &Registry{
		records:  make(map[protocol.Address]*Record),
		liveness: livenessTimeout,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// LivenessTimeout returns the configured silence limit.
func (r *Registry) LivenessTimeout() time.Duration {
	return r.liveness
}

// Upsert records that addr was heard at now. REGISTER and HEARTBEAT both
// land here: a known module only has its liveness refreshed, so repeated
// registration never resets solved or scheduling state.
//
// Returns:
//   - created: a new record was made
//   - revived: an offline module came back
func (r *Registry) Upsert(addr protocol.Address, now time.Time) (created, revived bool, err error) {
	if err := validate(addr); err != nil {
		return false, false, err
	}

	rec, ok := r.records[addr]
	if !ok {
		rec = newRecord(addr, now, !r.frozen)
		r.records[addr] = rec
		r.logger.Info("module registered", "address", addr.Describe(), "category", rec.Category, "in_roster", rec.InRoster)
		return true, false, nil
	}

	revived = !rec.Online
	rec.Online = true
	rec.LastSeenAt = now
	rec.Messages++
	if revived {
		r.logger.Info("module back online", "address", addr.Describe())
	}
	return false, revived, nil
}

func newRecord(addr protocol.Address, now time.Time, inRoster bool) *Record {
	t, inst := addr.Split()
	rec := &Record{
		Address:     addr,
		Type:        t,
		Instance:    inst,
		Category:    t.Category(),
		Online:      true,
		InRoster:    inRoster,
		FirstSeenAt: now,
		LastSeenAt:  now,
		Messages:    1,
	}
	if rec.Category == protocol.CategoryNeedy {
		rec.NeedyInterval = t.NeedyInterval()
		rec.NextActivationAt = now.Add(rec.NeedyInterval)
	}
	return rec
}

func validate(addr protocol.Address) error {
	switch {
	case !addr.IsValid(), addr.IsBroadcast(), addr.IsSubChannel():
		return fmt.Errorf("%w: %s", ErrInvalidModule, addr)
	case addr == protocol.TimerAddress:
		return fmt.Errorf("%w: %s is the orchestrator", ErrInvalidModule, addr)
	}
	return nil
}

// MarkSolved records a solve.
//
// For a Regular module the first call flips Solved and returns true; later
// calls are no-ops. For a Needy module a solve disarms the current
// activation and pushes the next one to at least now + interval; it
// returns true when the module was active. Ignored modules never change.
func (r *Registry) MarkSolved(addr protocol.Address, now time.Time) (bool, error) {
	rec, ok := r.records[addr]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrModuleNotFound, addr)
	}

	switch rec.Category {
	case protocol.CategoryRegular:
		if rec.Solved {
			return false, nil
		}
		rec.Solved = true
		r.logger.Info("module solved", "address", addr.Describe())
		return true, nil

	case protocol.CategoryNeedy:
		if !rec.Active {
			return false, nil
		}
		rec.Active = false
		if next := now.Add(rec.NeedyInterval); rec.NextActivationAt.Before(next) {
			rec.NextActivationAt = next
		}
		r.logger.Debug("needy module disarmed", "address", addr.Describe(), "next", rec.NextActivationAt)
		return true, nil
	}
	return false, nil
}

// ApplyReport stores a module-reported status. A report's solved flag can
// only ever mark a Regular module solved, never unsolve it. Needy modules
// are disarmed by an explicit SOLVED only: their reported flag lags behind
// each new activation. Returns true when the report caused a solve
// transition.
func (r *Registry) ApplyReport(addr protocol.Address, report protocol.ModuleReport, strikes *uint8, now time.Time) (bool, error) {
	rec, ok := r.records[addr]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrModuleNotFound, addr)
	}
	rep := report
	rec.Report = &rep
	if strikes != nil {
		rec.ModuleStrikes = *strikes
	}
	if !report.Solved || rec.Category != protocol.CategoryRegular {
		return false, nil
	}
	return r.MarkSolved(addr, now)
}

// SweepLiveness marks modules silent for longer than the liveness timeout
// offline and disarms them. Records are kept so a late message can revive
// them. Returns the addresses that went offline.
func (r *Registry) SweepLiveness(now time.Time) []protocol.Address {
	var stale []protocol.Address
	for addr, rec := range r.records {
		if !rec.Online || now.Sub(rec.LastSeenAt) <= r.liveness {
			continue
		}
		rec.Online = false
		rec.Active = false
		stale = append(stale, addr)
		r.logger.Warn("module timed out", "address", addr.Describe(), "silent_for", now.Sub(rec.LastSeenAt))
	}
	slices.Sort(stale)
	return stale
}

// ActivateDueNeedy arms every online, inactive Needy module whose
// activation time has arrived and schedules its next activation. Active
// modules whose deadline passed are rescheduled so NextActivationAt stays
// in the future. Returns the armed records in address order.
func (r *Registry) ActivateDueNeedy(now time.Time) []Record {
	var armed []Record
	for _, rec := range r.records {
		if rec.Category != protocol.CategoryNeedy || !rec.Online || now.Before(rec.NextActivationAt) {
			continue
		}
		rec.NextActivationAt = now.Add(rec.NeedyInterval)
		if rec.Active {
			continue
		}
		rec.Active = true
		rec.Activations++
		armed = append(armed, *rec.DeepCopy())
	}
	slices.SortFunc(armed, func(a, b Record) int { return int(a.Address) - int(b.Address) })
	return armed
}

// ScheduleNeedy disarms every Needy module and sets its first activation
// one interval after now. Called when a game starts.
func (r *Registry) ScheduleNeedy(now time.Time) {
	for _, rec := range r.records {
		if rec.Category == protocol.CategoryNeedy {
			rec.Active = false
			rec.NextActivationAt = now.Add(rec.NeedyInterval)
		}
	}
}

// PostponeNeedy shifts every pending activation by d, used when a paused
// game resumes.
func (r *Registry) PostponeNeedy(d time.Duration) {
	if d <= 0 {
		return
	}
	for _, rec := range r.records {
		if rec.Category == protocol.CategoryNeedy {
			rec.NextActivationAt = rec.NextActivationAt.Add(d)
		}
	}
}

// FreezeRoster fixes the current module set as the game's roster. Modules
// first heard afterwards are tracked but never counted.
func (r *Registry) FreezeRoster() int {
	r.frozen = true
	n := 0
	for _, rec := range r.records {
		rec.InRoster = true
		n++
	}
	return n
}

// RosterFrozen reports whether FreezeRoster has been called since the
// last Clear.
func (r *Registry) RosterFrozen() bool {
	return r.frozen
}

// Clear removes every record and unfreezes the roster.
func (r *Registry) Clear() {
	clear(r.records)
	r.frozen = false
}

// Counts summarises the registry. Regular counts only include roster
// modules; needy counts include every needy module heard.
func (r *Registry) Counts() Counts {
	var c Counts
	for _, rec := range r.records {
		c.Total++
		if rec.Online {
			c.Online++
		}
		switch rec.Category {
		case protocol.CategoryRegular:
			if !rec.InRoster {
				continue
			}
			c.RegularTotal++
			if rec.Solved {
				c.RegularSolved++
			}
		case protocol.CategoryNeedy:
			c.NeedyTotal++
			if rec.Active {
				c.ActiveNeedy++
			}
		}
	}
	return c
}

// Get returns a copy of the record for addr.
func (r *Registry) Get(addr protocol.Address) (Record, bool) {
	rec, ok := r.records[addr]
	if !ok {
		return Record{}, false
	}
	return *rec.DeepCopy(), true
}

// List returns copies of all records in address order.
func (r *Registry) List() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec.DeepCopy())
	}
	slices.SortFunc(out, func(a, b Record) int { return int(a.Address) - int(b.Address) })
	return out
}

// Addresses returns every known module address in order.
func (r *Registry) Addresses() []protocol.Address {
	out := make([]protocol.Address, 0, len(r.records))
	for addr := range r.records {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}
