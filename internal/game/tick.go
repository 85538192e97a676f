package game

import (
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// Tick runs one pass of the game loop: liveness, pre-start countdown,
// timer, cues, strike limit, needy activation and the win check.
func (o *Orchestrator) Tick() {
	now := o.clock.Now()

	if stale := o.reg.SweepLiveness(now); len(stale) > 0 {
		o.touch()
		o.checkWin(now)
	}

	switch o.state {
	case StateIdle:
		o.tickCountdown(now)
	case StateRunning:
		o.tickRunning(now)
	}
}

func (o *Orchestrator) tickCountdown(now time.Time) {
	if o.countdown == 0 || now.Before(o.countdownNext) {
		return
	}
	o.countdown--
	if o.countdown == 0 {
		o.enterRunning(now)
		return
	}
	o.countdownNext = o.countdownNext.Add(time.Second)
	o.announceCountdown()
}

func (o *Orchestrator) tickRunning(now time.Time) {
	if o.timer.Advance(now, o.Multiplier()) {
		o.logger.Info("time expired")
		o.endGame(StateExploded, now)
		return
	}
	remaining := o.timer.Remaining()

	if sec := wholeSeconds(remaining); sec != o.lastSecond {
		o.lastSecond = sec
		o.touch()
		o.broadcast(protocol.NewTimeUpdate(remaining))
		if o.hooks.OnTimeUpdate != nil {
			o.hooks.OnTimeUpdate(remaining)
		}
		if o.cfg.CuesEnabled {
			o.sendCue(o.beepCue())
		}
	}

	if o.cfg.CuesEnabled && remaining < o.cfg.EmergencyThreshold &&
		(o.lastAlarm.IsZero() || now.Sub(o.lastAlarm) >= o.cfg.EmergencyAlarmEvery) {
		o.lastAlarm = now
		o.sendCue(protocol.CueAlarmEmergency)
	}

	if o.strikes >= o.cfg.MaxStrikes {
		o.logger.Info("strike limit reached", "strikes", o.strikes)
		o.endGame(StateExploded, now)
		return
	}

	if o.cfg.NeedyEnabled {
		for _, rec := range o.reg.ActivateDueNeedy(now) {
			o.touch()
			o.stats.NeedyActivations++
			o.logger.Info("needy module activated", "address", rec.Address.Describe(), "activations", rec.Activations)
			o.send(rec.Address, protocol.NeedyActivate{IntervalSeconds: clampByte(int(rec.NeedyInterval / time.Second))})
		}
	}

	o.checkWin(now)
}

// beepCue picks the per-second beep; it speeds up with strikes.
func (o *Orchestrator) beepCue() protocol.Cue {
	switch {
	case o.strikes == 0:
		return protocol.CueBeepNormal
	case o.strikes == 1:
		return protocol.CueBeepFast
	default:
		return protocol.CueBeepHigh
	}
}
