package game

import "time"

// Config holds the game rules and loop timing.
type Config struct {
	// TimeLimit is the countdown length.
	TimeLimit time.Duration

	// MaxStrikes ends the game when reached while running.
	MaxStrikes int

	// StrikeAcceleration is k in the timer multiplier 1 + k*strikes.
	StrikeAcceleration  float64
	AccelerationEnabled bool

	// EmergencyThreshold starts the emergency alarm cue when the remaining
	// time drops below it; the alarm repeats every EmergencyAlarmEvery.
	EmergencyThreshold  time.Duration
	EmergencyAlarmEvery time.Duration

	// CountdownSeconds is the pre-start countdown. Zero starts immediately.
	CountdownSeconds int

	NeedyEnabled    bool
	EdgeworkEnabled bool

	// CuesEnabled sends countdown beeps to the audio unit.
	CuesEnabled bool

	// TickInterval is how often the loop ticks.
	TickInterval time.Duration

	// LivenessTimeout marks silent modules offline.
	LivenessTimeout time.Duration
}

// DefaultConfig returns the standard rules.
func DefaultConfig() Config {
	return Config{
		TimeLimit:           5 * time.Minute,
		MaxStrikes:          3,
		StrikeAcceleration:  0.25,
		AccelerationEnabled: true,
		EmergencyThreshold:  time.Minute,
		EmergencyAlarmEvery: 2 * time.Second,
		NeedyEnabled:        true,
		EdgeworkEnabled:     true,
		CuesEnabled:         true,
		TickInterval:        50 * time.Millisecond,
		LivenessTimeout:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimeLimit <= 0 {
		c.TimeLimit = d.TimeLimit
	}
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = d.MaxStrikes
	}
	if c.StrikeAcceleration < 0 {
		c.StrikeAcceleration = 0
	}
	if c.EmergencyAlarmEvery <= 0 {
		c.EmergencyAlarmEvery = d.EmergencyAlarmEvery
	}
	if c.CountdownSeconds < 0 {
		c.CountdownSeconds = 0
	}
	if c.CountdownSeconds > 255 {
		c.CountdownSeconds = 255
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = d.LivenessTimeout
	}
	return c
}
