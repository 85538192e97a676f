package game

import "time"

// Timer is the game countdown. Remaining time never increases while
// running and never goes below zero.
type Timer struct {
	limit     time.Duration
	remaining time.Duration
	lastTick  time.Time
	running   bool
}

// NewTimer returns a stopped timer holding the full limit.
func NewTimer(limit time.Duration) Timer {
	return Timer{limit: limit, remaining: limit}
}

// Reset stops the timer and refills it.
func (t *Timer) Reset(limit time.Duration) {
	*t = NewTimer(limit)
}

// Start (re)starts counting from now with the current remaining time.
func (t *Timer) Start(now time.Time) {
	t.lastTick = now
	t.running = true
}

// Stop freezes the remaining time.
func (t *Timer) Stop() {
	t.running = false
}

// Set replaces the remaining time, clamped to [0, limit].
func (t *Timer) Set(d time.Duration) {
	t.remaining = min(max(d, 0), t.limit)
}

// Advance subtracts the time since the last tick scaled by multiplier.
// It reports true when the countdown has reached zero.
func (t *Timer) Advance(now time.Time, multiplier float64) bool {
	if !t.running {
		return false
	}
	elapsed := now.Sub(t.lastTick)
	t.lastTick = now
	if elapsed < 0 {
		elapsed = 0
	}

	scaled := time.Duration(float64(elapsed) * multiplier)
	if scaled >= t.remaining {
		t.remaining = 0
		return true
	}
	t.remaining -= scaled
	return false
}

// Remaining returns the time left.
func (t *Timer) Remaining() time.Duration { return t.remaining }

// Limit returns the configured limit.
func (t *Timer) Limit() time.Duration { return t.limit }

// Running reports whether the timer is counting.
func (t *Timer) Running() bool { return t.running }
