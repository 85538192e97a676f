// Package clock abstracts wall-clock time so the game loop and the
// negotiation waits can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and a blocking sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System is the real clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (System) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances the clock instead of
// blocking, so a polling wait runs to its deadline instantly.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	onSleep func(d time.Duration)
}

// NewFake returns a fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake time by d and then runs the OnSleep hook.
func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
	f.mu.Lock()
	hook := f.onSleep
	f.mu.Unlock()
	if hook != nil {
		hook(d)
	}
}

// Advance moves the fake time forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// OnSleep registers a hook run after every Sleep, used by tests to
// inject bus traffic while a caller is polling.
func (f *Fake) OnSleep(fn func(d time.Duration)) {
	f.mu.Lock()
	f.onSleep = fn
	f.mu.Unlock()
}
