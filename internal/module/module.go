package module

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/clock"
	"github.com/nerrad567/defuse-core/internal/negotiation"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

// DefaultHeartbeatInterval is how often a module reports liveness.
const DefaultHeartbeatInterval = 2 * time.Second

// Port is the module's bus attachment. *bus.Port satisfies it.
type Port interface {
	Send(dest protocol.Address, body protocol.Body) error
	Poll() (bus.Received, bool)
	SetLocal(addr protocol.Address)
	Local() protocol.Address
}

// Logger defines the logging interface used by modules.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Handlers receive orchestrator broadcasts. Every field is optional and
// runs on the goroutine calling Step.
type Handlers struct {
	OnGameStart     func()
	OnGameStop      func()
	OnReset         func()
	OnStrikes       func(strikes int)
	OnSerial        func(serial string)
	OnTime          func(remaining time.Duration)
	OnCountdown     func(seconds int)
	OnNeedyActivate func(interval time.Duration)
	OnIndicators    func(msg protocol.EdgeworkIndicators)
	OnPorts         func(msg protocol.EdgeworkPorts)

	// OnMessage receives anything not covered above, such as audio cues
	// addressed to the audio unit.
	OnMessage func(rx bus.Received)
}

// Options configures a Module.
type Options struct {
	Type protocol.ModuleType
	Port Port

	Clock clock.Clock
	Rand  negotiation.Rand

	Negotiation       negotiation.Config
	HeartbeatInterval time.Duration

	Handlers Handlers
	Logger   Logger
}

// View is what a module knows about the game. Every field is last known,
// not guaranteed current.
type View struct {
	Running   bool
	Strikes   int
	Serial    string
	Remaining time.Duration
	Countdown int
}

// Module is the module-side runtime: it claims an address, registers,
// answers probes for its instance, applies broadcasts and heartbeats.
//
// Thread Safety: none. Start, Step and the report methods must be called
// from one goroutine.
type Module struct {
	typ      protocol.ModuleType
	port     Port
	clock    clock.Clock
	rng      negotiation.Rand
	negCfg   negotiation.Config
	interval time.Duration
	handlers Handlers
	logger   Logger

	started       bool
	report        protocol.ModuleReport
	view          View
	lastHeartbeat time.Time
	taken         int
}

// New validates the options and creates a Module.
func New(opts Options) (*Module, error) {
	if opts.Port == nil {
		return nil, ErrNoPort
	}
	if opts.Type >= protocol.TypeBroadcast || opts.Type == protocol.TypeTimer {
		return nil, fmt.Errorf("module: invalid type %s", opts.Type)
	}
	m := &Module{
		typ:      opts.Type,
		port:     opts.Port,
		clock:    opts.Clock,
		rng:      opts.Rand,
		negCfg:   opts.Negotiation,
		interval: opts.HeartbeatInterval,
		handlers: opts.Handlers,
		logger:   opts.Logger,
		report:   protocol.ModuleReport{State: protocol.ModuleIdle},
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.interval <= 0 {
		m.interval = DefaultHeartbeatInterval
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m, nil
}

// Start claims the module's address and registers with the orchestrator.
// Singletons take instance 0 directly; other types negotiate.
func (m *Module) Start(ctx context.Context) (negotiation.Result, error) {
	var res negotiation.Result
	if m.typ.IsSingleton() {
		addr := protocol.SubChannel(m.typ)
		m.port.SetLocal(addr)
		if err := m.port.Send(protocol.TimerAddress, protocol.Register{}); err != nil {
			m.logger.Warn("register send failed", "address", addr, "error", err)
		}
		res = negotiation.Result{Address: addr}
	} else {
		neg, err := negotiation.New(negotiation.Options{
			Type:   m.typ,
			Bus:    m.port,
			Clock:  m.clock,
			Rand:   m.rng,
			Config: m.negCfg,
			Logger: m.logger,
		})
		if err != nil {
			return negotiation.Result{}, err
		}
		res, err = neg.Run(ctx)
		if err != nil {
			return negotiation.Result{}, err
		}
	}
	m.started = true
	m.lastHeartbeat = m.clock.Now()
	return res, nil
}

// Address returns the module's operating address.
func (m *Module) Address() protocol.Address { return m.port.Local() }

// Type returns the module type.
func (m *Module) Type() protocol.ModuleType { return m.typ }

// View returns the module's last known game state.
func (m *Module) View() View { return m.view }

// Report returns the module's own status.
func (m *Module) Report() protocol.ModuleReport { return m.report }

// TakenReplies returns how many probes for this instance were answered.
func (m *Module) TakenReplies() int { return m.taken }

// Step drains pending bus traffic and sends a heartbeat when due. Probes
// for the module's own instance are answered before anything else in the
// batch is applied.
func (m *Module) Step() {
	if !m.started {
		return
	}
	var batch []bus.Received
	for {
		rx, ok := m.port.Poll()
		if !ok {
			break
		}
		batch = append(batch, rx)
	}

	own := m.port.Local()
	for _, rx := range batch {
		if taken, ok := negotiation.Answer(own, rx.Message); ok {
			m.taken++
			m.logger.Debug("answering probe", "candidate", taken.Candidate)
			m.send(protocol.SubChannel(m.typ), taken)
		}
	}
	for _, rx := range batch {
		m.apply(rx)
	}

	if now := m.clock.Now(); now.Sub(m.lastHeartbeat) >= m.interval {
		m.lastHeartbeat = now
		rep := m.report
		m.send(protocol.TimerAddress, protocol.Heartbeat{Report: &rep})
	}
}

// Run calls Step every interval until ctx is cancelled.
func (m *Module) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Step()
		}
	}
}

func (m *Module) apply(rx bus.Received) {
	h := m.handlers
	switch body := rx.Body.(type) {
	case protocol.Probe, protocol.Taken:
		// answered above

	case protocol.GameStart:
		m.view.Running = true
		m.view.Countdown = 0
		if m.report.State == protocol.ModuleIdle {
			m.report.State = protocol.ModuleArmed
		}
		if h.OnGameStart != nil {
			h.OnGameStart()
		}

	case protocol.GameStop:
		m.view.Running = false
		if h.OnGameStop != nil {
			h.OnGameStop()
		}

	case protocol.Reset:
		m.view = View{}
		m.report = protocol.ModuleReport{State: protocol.ModuleIdle}
		if h.OnReset != nil {
			h.OnReset()
		}
		m.send(protocol.TimerAddress, protocol.Register{})

	case protocol.StrikeUpdate:
		m.view.Strikes = int(body.Strikes)
		if h.OnStrikes != nil {
			h.OnStrikes(m.view.Strikes)
		}

	case protocol.SerialNumber:
		m.view.Serial = body.Serial
		if h.OnSerial != nil {
			h.OnSerial(body.Serial)
		}

	case protocol.TimeUpdate:
		m.view.Remaining = body.Remaining()
		if h.OnTime != nil {
			h.OnTime(m.view.Remaining)
		}

	case protocol.Countdown:
		m.view.Countdown = int(body.Seconds)
		if h.OnCountdown != nil {
			h.OnCountdown(m.view.Countdown)
		}

	case protocol.NeedyActivate:
		m.report.Solved = false
		m.report.State = protocol.ModuleArmed
		m.report.Progress = 0
		if h.OnNeedyActivate != nil {
			h.OnNeedyActivate(body.Interval())
		}

	case protocol.EdgeworkIndicators:
		if h.OnIndicators != nil {
			h.OnIndicators(body)
		}

	case protocol.EdgeworkPorts:
		if h.OnPorts != nil {
			h.OnPorts(body)
		}

	default:
		if h.OnMessage != nil {
			h.OnMessage(rx)
		}
	}
}

// Solve reports the module solved.
func (m *Module) Solve() error {
	if !m.started {
		return ErrNotStarted
	}
	m.report.Solved = true
	m.report.State = protocol.ModuleSolved
	m.report.Progress = 100
	return m.port.Send(protocol.TimerAddress, protocol.Solved{})
}

// Strike reports a mistake.
func (m *Module) Strike() error {
	if !m.started {
		return ErrNotStarted
	}
	return m.port.Send(protocol.TimerAddress, protocol.Strike{})
}

// SetProgress records puzzle progress, reported with the next heartbeat.
func (m *Module) SetProgress(percent uint8) {
	m.report.Progress = min(percent, 100)
}

// ReportStatus sends a STATUS message immediately.
func (m *Module) ReportStatus() error {
	if !m.started {
		return ErrNotStarted
	}
	return m.port.Send(protocol.TimerAddress, protocol.Status{
		ModuleReport: m.report,
		Strikes:      uint8(min(max(m.view.Strikes, 0), 255)), //nolint:gosec // clamped
	})
}

func (m *Module) send(dest protocol.Address, body protocol.Body) {
	if err := m.port.Send(dest, body); err != nil {
		m.logger.Warn("bus send failed", "dest", dest, "message", body.Type(), "error", err)
	}
}
