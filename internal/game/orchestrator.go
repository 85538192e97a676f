package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/defuse-core/internal/clock"
	"github.com/nerrad567/defuse-core/internal/protocol"
	"github.com/nerrad567/defuse-core/internal/registry"
)

// Sender transmits a message body from the orchestrator's own address.
// *bus.Port satisfies it.
type Sender interface {
	Send(dest protocol.Address, body protocol.Body) error
}

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Orchestrator.
type Options struct {
	// Config is the game rules. The zero Config means DefaultConfig; a
	// partial Config should start from DefaultConfig, since its switches
	// cannot tell unset from off.
	Config Config

	// Sender is the bus. Required.
	Sender Sender

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Rand drives serial number and edgework generation. Required.
	Rand Rand

	Hooks  Hooks
	Logger Logger

	// Registry defaults to a new registry using Config.LivenessTimeout.
	Registry *registry.Registry
}

// Orchestrator is the game state machine run by the timer unit.
//
// Thread Safety: none. Every method must be called from the single loop
// goroutine that owns it (see Runner). Other goroutines read Snapshots.
type Orchestrator struct {
	cfg    Config
	sender Sender
	clock  clock.Clock
	rng    Rand
	hooks  Hooks
	logger Logger
	reg    *registry.Registry

	state     State
	enteredAt time.Time
	timer     Timer
	strikes   int
	serial    string
	edgework  Edgework
	stats     Stats

	// lastSecond is the whole second of remaining time last announced,
	// rounded up.
	lastSecond int64
	lastAlarm  time.Time
	pausedAt   time.Time

	// countdown is the pre-start countdown still to run, zero when idle.
	countdown     int
	countdownNext time.Time

	// changes increases on every visible state change.
	changes    uint64
	sendErrors uint64
}

// New validates the options and creates an orchestrator in Discovery.
// Call Begin once the bus is ready to announce the fresh game.
func New(opts Options) (*Orchestrator, error) {
	if opts.Sender == nil {
		return nil, errors.New("game: sender is required")
	}
	if opts.Rand == nil {
		return nil, errors.New("game: random source is required")
	}
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	o := &Orchestrator{
		cfg:    cfg,
		sender: opts.Sender,
		clock:  opts.Clock,
		rng:    opts.Rand,
		hooks:  opts.Hooks,
		logger: opts.Logger,
		reg:    opts.Registry,
	}
	if o.clock == nil {
		o.clock = clock.System{}
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	if o.reg == nil {
		o.reg = registry.New(cfg.LivenessTimeout)
	}
	if opts.Logger != nil {
		o.reg.SetLogger(opts.Logger)
	}
	o.resetGame(o.clock.Now())
	return o, nil
}

// Begin announces the fresh game by broadcasting RESET, which makes any
// module already on the bus register again.
func (o *Orchestrator) Begin() {
	o.logger.Info("orchestrator ready", "serial", o.serial, "time_limit", o.cfg.TimeLimit, "max_strikes", o.cfg.MaxStrikes)
	o.broadcast(protocol.Reset{})
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Strikes returns the current strike count.
func (o *Orchestrator) Strikes() int { return o.strikes }

// Remaining returns the countdown's remaining time.
func (o *Orchestrator) Remaining() time.Duration { return o.timer.Remaining() }

// Serial returns the current serial number.
func (o *Orchestrator) Serial() string { return o.serial }

// Edgework returns a copy of the current edgework.
func (o *Orchestrator) Edgework() Edgework { return o.edgework.Clone() }

// AddHooks appends another hook set. Call it before the loop starts.
func (o *Orchestrator) AddHooks(h Hooks) {
	o.hooks = MultiHooks(o.hooks, h)
}

// Registry returns the module registry. It must only be used from the
// loop goroutine.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Multiplier returns the current timer speed, 1 + k*strikes.
func (o *Orchestrator) Multiplier() float64 {
	if !o.cfg.AccelerationEnabled {
		return 1
	}
	return 1 + o.cfg.StrikeAcceleration*float64(o.strikes)
}

// ConfirmModules freezes the roster and moves Discovery to Idle.
func (o *Orchestrator) ConfirmModules() error {
	if o.state == StateIdle {
		return nil
	}
	if o.state != StateDiscovery {
		return o.invalid("confirm")
	}
	n := o.reg.FreezeRoster()
	counts := o.reg.Counts()
	o.stats.ModulesTotal = counts.RegularTotal
	o.logger.Info("roster confirmed", "modules", n, "regular", counts.RegularTotal, "needy", counts.NeedyTotal)
	o.transition(StateIdle)
	return nil
}

// Start moves Idle to Running. With a pre-start countdown configured the
// game stays Idle while COUNTDOWN is broadcast once per second and enters
// Running from Tick when it reaches zero.
func (o *Orchestrator) Start() error {
	switch o.state {
	case StateRunning:
		return nil
	case StateIdle:
	default:
		return o.invalid("start")
	}
	if o.countdown > 0 {
		return nil
	}

	now := o.clock.Now()
	if o.cfg.CountdownSeconds > 0 {
		o.countdown = o.cfg.CountdownSeconds
		o.countdownNext = now.Add(time.Second)
		o.announceCountdown()
		return nil
	}
	o.enterRunning(now)
	return nil
}

// Pause freezes the countdown.
func (o *Orchestrator) Pause() error {
	if o.state == StatePaused {
		return nil
	}
	if o.state != StateRunning {
		return o.invalid("pause")
	}
	o.timer.Stop()
	o.pausedAt = o.clock.Now()
	o.stats.Pauses++
	o.broadcast(protocol.GameStop{})
	o.transition(StatePaused)
	return nil
}

// Resume restarts the countdown from the frozen remaining time. Needy
// activations are pushed back by the time spent paused.
func (o *Orchestrator) Resume() error {
	if o.state == StateRunning {
		return nil
	}
	if o.state != StatePaused {
		return o.invalid("resume")
	}
	now := o.clock.Now()
	paused := now.Sub(o.pausedAt)
	o.stats.PausedFor += paused
	o.reg.PostponeNeedy(paused)
	o.timer.Start(now)
	o.broadcast(protocol.GameStart{})
	o.broadcast(protocol.NewTimeUpdate(o.timer.Remaining()))
	o.transition(StateRunning)
	return nil
}

// Reset abandons the current game and returns to Discovery with a cleared
// registry, a new serial number and new edgework. A reset while already in
// Discovery does nothing.
func (o *Orchestrator) Reset() {
	if o.state == StateDiscovery {
		return
	}
	now := o.clock.Now()
	if o.stats.Started() && !o.stats.Ended() {
		o.closeStats(now, OutcomeAborted)
		if o.hooks.OnGameEnded != nil {
			o.hooks.OnGameEnded(o.Snapshot())
		}
	}
	o.resetGame(now)
	o.broadcast(protocol.Reset{})
	o.transition(StateDiscovery)
}

// AddStrike adds one strike, up to the maximum. Reaching the maximum while
// Running explodes the bomb.
func (o *Orchestrator) AddStrike() error {
	if o.state.IsTerminal() {
		return ErrGameOver
	}
	if o.strikes >= o.cfg.MaxStrikes {
		return nil
	}
	o.strikes++
	o.stats.StrikesIncurred++
	o.logger.Info("strike", "strikes", o.strikes, "max", o.cfg.MaxStrikes)
	o.announceStrikes()
	o.sendCue(protocol.CueStrike)
	o.checkStrikeLimit()
	return nil
}

// SetStrikes overrides the strike count. Values outside [0, max] are
// clamped. Nothing is broadcast when the count does not change.
func (o *Orchestrator) SetStrikes(n int) error {
	if o.state.IsTerminal() {
		return ErrGameOver
	}
	n = min(max(n, 0), o.cfg.MaxStrikes)
	if n == o.strikes {
		return nil
	}
	if n > o.strikes {
		o.stats.StrikesIncurred += n - o.strikes
	}
	o.strikes = n
	o.logger.Info("strikes set", "strikes", n, "max", o.cfg.MaxStrikes)
	o.announceStrikes()
	o.checkStrikeLimit()
	return nil
}

// SetModuleSolved marks a known module solved on the operator's behalf.
func (o *Orchestrator) SetModuleSolved(addr protocol.Address) error {
	if o.state.IsTerminal() {
		return ErrGameOver
	}
	return o.markSolved(addr, o.clock.Now())
}

// SetTimeRemaining overrides the countdown, clamped to [0, limit].
func (o *Orchestrator) SetTimeRemaining(d time.Duration) error {
	if o.state.IsTerminal() {
		return ErrGameOver
	}
	o.timer.Set(d)
	remaining := o.timer.Remaining()
	o.lastSecond = wholeSeconds(remaining)
	o.logger.Info("time set", "remaining", remaining)
	o.broadcast(protocol.NewTimeUpdate(remaining))
	if o.hooks.OnTimeUpdate != nil {
		o.hooks.OnTimeUpdate(remaining)
	}
	o.touch()
	if o.state == StateRunning && remaining == 0 {
		o.endGame(StateExploded, o.clock.Now())
	}
	return nil
}

func (o *Orchestrator) invalid(op string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, o.state)
}

// transition enters a new state and fires exactly one notification.
// Re-entering the current state does nothing.
func (o *Orchestrator) transition(to State) {
	if to == o.state {
		return
	}
	from := o.state
	o.state = to
	o.enteredAt = o.clock.Now()
	o.touch()
	o.logger.Info("game state changed", "from", from, "to", to)
	if o.hooks.OnStateChange != nil {
		o.hooks.OnStateChange(from, to)
	}
}

// resetGame reinitialises everything owned by a single game.
func (o *Orchestrator) resetGame(now time.Time) {
	o.reg.Clear()
	o.timer.Reset(o.cfg.TimeLimit)
	o.strikes = 0
	o.serial = GenerateSerial(o.rng)
	o.edgework = Edgework{}
	if o.cfg.EdgeworkEnabled {
		o.edgework = GenerateEdgework(o.rng)
	}
	o.stats = Stats{}
	o.lastSecond = wholeSeconds(o.cfg.TimeLimit)
	o.lastAlarm = time.Time{}
	o.pausedAt = time.Time{}
	o.countdown = 0
	o.enteredAt = now
	o.touch()
	o.logger.Debug("new game prepared", "serial", o.serial)
}

func (o *Orchestrator) enterRunning(now time.Time) {
	o.countdown = 0
	if o.cfg.NeedyEnabled {
		o.reg.ScheduleNeedy(now)
	}
	o.stats.StartedAt = now
	o.stats.ModulesTotal = o.reg.Counts().RegularTotal
	o.lastSecond = wholeSeconds(o.timer.Remaining())
	o.timer.Start(now)

	for _, body := range o.fullState() {
		o.broadcastToAll(body)
	}
	o.broadcastToAll(protocol.GameStart{})

	o.transition(StateRunning)
	if o.hooks.OnGameStarted != nil {
		o.hooks.OnGameStarted(o.Snapshot())
	}
}

// endGame enters a terminal state once.
func (o *Orchestrator) endGame(to State, now time.Time) {
	if o.state.IsTerminal() {
		return
	}
	o.timer.Stop()
	o.broadcast(protocol.GameStop{})
	switch to {
	case StateExploded:
		o.sendCue(protocol.CueExploded)
	case StateDefused:
		o.sendCue(protocol.CueDefused)
	}
	o.closeStats(now, outcomeFor(to))
	o.transition(to)
	if o.hooks.OnGameEnded != nil {
		o.hooks.OnGameEnded(o.Snapshot())
	}
}

func (o *Orchestrator) closeStats(now time.Time, outcome Outcome) {
	counts := o.reg.Counts()
	o.stats.EndedAt = now
	o.stats.Outcome = outcome
	o.stats.ModulesSolved = counts.RegularSolved
	o.stats.ModulesTotal = counts.RegularTotal
	o.stats.TimeRemaining = o.timer.Remaining()
}

// checkStrikeLimit explodes the bomb once strikes reach the maximum while
// Running. Outside Running the limit is checked again on the next tick
// after the game starts.
func (o *Orchestrator) checkStrikeLimit() {
	if o.state == StateRunning && o.strikes >= o.cfg.MaxStrikes {
		o.endGame(StateExploded, o.clock.Now())
	}
}

// checkWin defuses the bomb when every counted Regular module is solved
// and no Needy module is active.
func (o *Orchestrator) checkWin(now time.Time) {
	if o.state != StateRunning {
		return
	}
	counts := o.reg.Counts()
	if counts.AllRegularSolved() && counts.ActiveNeedy == 0 {
		o.endGame(StateDefused, now)
	}
}

// markSolved applies a solve and runs the follow-up notifications.
func (o *Orchestrator) markSolved(addr protocol.Address, now time.Time) error {
	changed, err := o.reg.MarkSolved(addr, now)
	if err != nil {
		return err
	}
	if changed {
		o.afterSolve(addr, now)
	}
	return nil
}

func (o *Orchestrator) afterSolve(addr protocol.Address, now time.Time) {
	o.touch()
	rec, ok := o.reg.Get(addr)
	if ok && rec.Category == protocol.CategoryRegular && rec.InRoster {
		counts := o.reg.Counts()
		o.stats.ModulesSolved = counts.RegularSolved
		if o.hooks.OnModuleSolved != nil {
			o.hooks.OnModuleSolved(counts.RegularSolved, counts.RegularTotal)
		}
	}
	o.checkWin(now)
}

func (o *Orchestrator) announceStrikes() {
	o.touch()
	o.broadcast(protocol.StrikeUpdate{Strikes: clampByte(o.strikes)})
	if o.hooks.OnStrikeChange != nil {
		o.hooks.OnStrikeChange(o.strikes, o.cfg.MaxStrikes)
	}
}

func (o *Orchestrator) announceCountdown() {
	o.touch()
	o.logger.Info("countdown", "seconds", o.countdown)
	o.broadcast(protocol.Countdown{Seconds: clampByte(o.countdown)})
	if o.cfg.CuesEnabled {
		o.sendCue(protocol.CueBeepNormal)
	}
}

// fullState is everything a module needs to join a game, in send order.
func (o *Orchestrator) fullState() []protocol.Body {
	bodies := []protocol.Body{protocol.SerialNumber{Serial: o.serial}}
	if o.cfg.EdgeworkEnabled {
		bodies = append(bodies, o.edgework.IndicatorMessage(), o.edgework.PortMessage())
	}
	return append(bodies,
		protocol.StrikeUpdate{Strikes: clampByte(o.strikes)},
		protocol.NewTimeUpdate(o.timer.Remaining()),
	)
}

// syncModule brings a module heard mid-game up to date.
func (o *Orchestrator) syncModule(addr protocol.Address) {
	for _, body := range o.fullState() {
		o.send(addr, body)
	}
	if o.state == StateRunning {
		o.send(addr, protocol.GameStart{})
	} else {
		o.send(addr, protocol.GameStop{})
	}
}

func (o *Orchestrator) sendCue(cue protocol.Cue) {
	o.send(protocol.AudioAddress, protocol.AudioCue{Cue: cue})
}

func (o *Orchestrator) broadcast(body protocol.Body) {
	o.send(protocol.BroadcastAddress, body)
}

// broadcastToAll sends body to every known module and then to the
// broadcast address.
func (o *Orchestrator) broadcastToAll(body protocol.Body) {
	for _, addr := range o.reg.Addresses() {
		o.send(addr, body)
	}
	o.broadcast(body)
}

// send never fails the caller; frames may be lost on the bus anyway.
func (o *Orchestrator) send(dest protocol.Address, body protocol.Body) {
	if err := o.sender.Send(dest, body); err != nil {
		o.sendErrors++
		o.logger.Warn("bus send failed", "dest", dest, "message", body.Type(), "error", err)
	}
}

func (o *Orchestrator) touch() { o.changes++ }

// Snapshot returns an immutable copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	remaining := o.timer.Remaining()
	stats := o.stats
	if !stats.Ended() {
		stats.TimeRemaining = remaining
	}
	return Snapshot{
		Seq:            o.changes,
		State:          o.state,
		StateEnteredAt: o.enteredAt,
		TimeLimitMs:    o.timer.Limit().Milliseconds(),
		RemainingMs:    remaining.Milliseconds(),
		TimerRunning:   o.timer.Running(),
		Multiplier:     o.Multiplier(),
		Strikes:        o.strikes,
		MaxStrikes:     o.cfg.MaxStrikes,
		Serial:         o.serial,
		Edgework:       o.edgework.Clone(),
		Countdown:      o.countdown,
		Counts:         o.reg.Counts(),
		Modules:        o.reg.List(),
		Stats:          stats,
		TakenAt:        o.clock.Now(),
	}
}

// wholeSeconds rounds up, so 59.9s still shows as 60.
func wholeSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
