package game

import (
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// HandleMessage applies one message received from the bus. Nothing here
// is fatal: unexpected traffic is logged and dropped.
func (o *Orchestrator) HandleMessage(msg protocol.Message) {
	now := o.clock.Now()
	sender := msg.Sender

	switch body := msg.Body.(type) {
	case protocol.Register:
		o.seen(sender, now)

	case protocol.Heartbeat:
		if o.seen(sender, now) && body.Report != nil {
			o.applyReport(sender, *body.Report, nil, now)
		}

	case protocol.Status:
		if o.seen(sender, now) {
			strikes := body.Strikes
			o.applyReport(sender, body.ModuleReport, &strikes, now)
		}

	case protocol.Solved:
		if !o.seen(sender, now) {
			return
		}
		if o.state.IsTerminal() {
			o.logger.Debug("solve after game end ignored", "sender", sender.Describe())
			return
		}
		if err := o.markSolved(sender, now); err != nil {
			o.logger.Warn("solve failed", "sender", sender.Describe(), "error", err)
		}

	case protocol.Strike:
		if !o.seen(sender, now) {
			return
		}
		if o.state.IsTerminal() {
			o.logger.Debug("strike after game end ignored", "sender", sender.Describe())
			return
		}
		o.logger.Info("module reported strike", "sender", sender.Describe())
		_ = o.AddStrike() // only fails in terminal states, excluded above

	case protocol.Probe, protocol.Taken:
		// Negotiation is between modules.

	default:
		o.logger.Debug("ignoring message", "sender", sender, "type", msg.Type())
	}
}

// seen refreshes liveness for sender, registering it when unknown. A module
// that appears or comes back mid-game gets the current state directly.
func (o *Orchestrator) seen(sender protocol.Address, now time.Time) bool {
	created, revived, err := o.reg.Upsert(sender, now)
	if err != nil {
		o.logger.Debug("message from non-module address", "sender", sender, "error", err)
		return false
	}
	if !created && !revived {
		return true
	}
	o.touch()
	if o.state == StateRunning || o.state == StatePaused {
		o.syncModule(sender)
	}
	return true
}

func (o *Orchestrator) applyReport(sender protocol.Address, report protocol.ModuleReport, strikes *uint8, now time.Time) {
	solved, err := o.reg.ApplyReport(sender, report, strikes, now)
	if err != nil {
		o.logger.Warn("status update failed", "sender", sender.Describe(), "error", err)
		return
	}
	if solved && !o.state.IsTerminal() {
		o.afterSolve(sender, now)
	}
}
