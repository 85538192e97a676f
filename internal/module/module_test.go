package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/clock"
	"github.com/nerrad567/defuse-core/internal/negotiation"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newPort(t *testing.T, sim *bus.SimBus, local protocol.Address) *bus.Port {
	t.Helper()
	p, err := bus.NewPort(bus.PortOptions{Transport: sim.Attach(), Local: local})
	if err != nil {
		t.Fatalf("NewPort() error = %v", err)
	}
	return p
}

func newModule(t *testing.T, sim *bus.SimBus, typ protocol.ModuleType, clk clock.Clock, h Handlers) *Module {
	t.Helper()
	m, err := New(Options{
		Type:              typ,
		Port:              newPort(t, sim, protocol.SubChannel(typ)),
		Clock:             clk,
		Negotiation:       negotiation.DefaultConfig(),
		HeartbeatInterval: time.Second,
		Handlers:          h,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func drainTypes(p *bus.Port) []protocol.MessageType {
	var out []protocol.MessageType
	p.Drain(func(rx bus.Received) { out = append(out, rx.Type()) })
	return out
}

func contains(types []protocol.MessageType, want protocol.MessageType) bool {
	for _, mt := range types {
		if mt == want {
			return true
		}
	}
	return false
}

func TestStartClaimsFirstInstanceAndRegisters(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)
	clk := clock.NewFake(t0)
	m := newModule(t, sim, protocol.TypeWires, clk, Handlers{})

	res, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	want, _ := protocol.NewAddress(protocol.TypeWires, 1)
	if res.Address != want || m.Address() != want {
		t.Errorf("address = %v (result %v), want %v", m.Address(), res.Address, want)
	}

	var sender protocol.Address
	timer.Drain(func(rx bus.Received) {
		if rx.Type() == protocol.MsgRegister {
			sender = rx.Sender
		}
	})
	if sender != want {
		t.Errorf("REGISTER sender = %v, want %v", sender, want)
	}
}

func TestHolderAnswersProbeDuringNegotiation(t *testing.T) {
	sim := bus.NewSimBus()
	clk := clock.NewFake(t0)

	first := newModule(t, sim, protocol.TypeKeypad, clk, Handlers{})
	if _, err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	second := newModule(t, sim, protocol.TypeKeypad, clk, Handlers{})
	clk.OnSleep(func(time.Duration) { first.Step() })
	res, err := second.Start(context.Background())
	clk.OnSleep(nil)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if got := first.Address().Instance(); got != 1 {
		t.Errorf("first instance = %d, want 1", got)
	}
	if res.Instance != 2 || res.Fallback {
		t.Errorf("second result = %+v, want instance 2 without fallback", res)
	}
	if first.TakenReplies() == 0 {
		t.Error("holder never answered a probe")
	}
}

func TestSingletonUsesInstanceZero(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)
	var cues []protocol.Cue
	audio := newModule(t, sim, protocol.TypeAudio, clock.NewFake(t0), Handlers{
		OnMessage: func(rx bus.Received) {
			if c, ok := rx.Body.(protocol.AudioCue); ok {
				cues = append(cues, c.Cue)
			}
		},
	})

	res, err := audio.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Address != protocol.AudioAddress || res.Probes != 0 {
		t.Errorf("result = %+v, want %v without probes", res, protocol.AudioAddress)
	}

	_ = timer.Send(protocol.AudioAddress, protocol.AudioCue{Cue: protocol.CueStrike})
	audio.Step()
	if len(cues) != 1 || cues[0] != protocol.CueStrike {
		t.Errorf("cues = %v, want [strike]", cues)
	}
}

func TestStepAppliesBroadcasts(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)
	clk := clock.NewFake(t0)

	var started bool
	var strikes []int
	m := newModule(t, sim, protocol.TypeButton, clk, Handlers{
		OnGameStart: func() { started = true },
		OnStrikes:   func(n int) { strikes = append(strikes, n) },
	})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	drainTypes(timer)

	for _, body := range []protocol.Body{
		protocol.SerialNumber{Serial: "AB3CD5"},
		protocol.StrikeUpdate{Strikes: 1},
		protocol.NewTimeUpdate(90 * time.Second),
		protocol.GameStart{},
	} {
		if err := timer.Send(protocol.BroadcastAddress, body); err != nil {
			t.Fatalf("Send(%v) error = %v", body.Type(), err)
		}
	}
	m.Step()

	view := m.View()
	if !view.Running || view.Serial != "AB3CD5" || view.Strikes != 1 || view.Remaining != 90*time.Second {
		t.Errorf("View() = %+v", view)
	}
	if !started || len(strikes) != 1 {
		t.Errorf("handlers: started=%v strikes=%v", started, strikes)
	}
	if m.Report().State != protocol.ModuleArmed {
		t.Errorf("report state = %v, want armed", m.Report().State)
	}
}

func TestResetReRegisters(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)
	m := newModule(t, sim, protocol.TypeMaze, clock.NewFake(t0), Handlers{})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	drainTypes(timer)

	_ = timer.Send(protocol.BroadcastAddress, protocol.Reset{})
	m.Step()

	if got := drainTypes(timer); !contains(got, protocol.MsgRegister) {
		t.Errorf("after RESET timer got %v, want REGISTER", got)
	}
}

func TestHeartbeatCarriesReport(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)
	clk := clock.NewFake(t0)
	m := newModule(t, sim, protocol.TypeMemory, clk, Handlers{})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	drainTypes(timer)

	m.SetProgress(40)
	m.Step()
	if got := drainTypes(timer); len(got) != 0 {
		t.Errorf("heartbeat sent early: %v", got)
	}

	clk.Advance(time.Second)
	m.Step()
	var report *protocol.ModuleReport
	timer.Drain(func(rx bus.Received) {
		if hb, ok := rx.Body.(protocol.Heartbeat); ok {
			report = hb.Report
		}
	})
	if report == nil || report.Progress != 40 {
		t.Errorf("heartbeat report = %+v, want progress 40", report)
	}
}

func TestSolveAndStrike(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)
	m := newModule(t, sim, protocol.TypeSimon, clock.NewFake(t0), Handlers{})

	if err := m.Solve(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Solve() before Start error = %v, want ErrNotStarted", err)
	}
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	drainTypes(timer)

	if err := m.Strike(); err != nil {
		t.Fatalf("Strike() error = %v", err)
	}
	if err := m.Solve(); err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if err := m.ReportStatus(); err != nil {
		t.Fatalf("ReportStatus() error = %v", err)
	}

	got := drainTypes(timer)
	want := []protocol.MessageType{protocol.MsgStrike, protocol.MsgSolved, protocol.MsgStatus}
	if len(got) != len(want) {
		t.Fatalf("timer got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNeedyActivateRearmsReport(t *testing.T) {
	sim := bus.NewSimBus()
	timer := newPort(t, sim, protocol.TimerAddress)

	var intervals []time.Duration
	m := newModule(t, sim, protocol.TypeVentingGas, clock.NewFake(t0), Handlers{
		OnNeedyActivate: func(d time.Duration) { intervals = append(intervals, d) },
	})
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Solve(); err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	drainTypes(timer)

	if err := timer.Send(m.Address(), protocol.NeedyActivate{IntervalSeconds: 30}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	m.Step()

	if len(intervals) != 1 || intervals[0] != 30*time.Second {
		t.Errorf("OnNeedyActivate calls = %v, want [30s]", intervals)
	}
	if r := m.Report(); r.Solved || r.State != protocol.ModuleArmed {
		t.Errorf("report after activation = %+v, want armed and unsolved", r)
	}
}

func TestNewRejectsTimerType(t *testing.T) {
	sim := bus.NewSimBus()
	_, err := New(Options{Type: protocol.TypeTimer, Port: newPort(t, sim, protocol.TimerAddress)})
	if err == nil {
		t.Error("New(TypeTimer) error = nil")
	}
	if _, err := New(Options{Type: protocol.TypeWires}); !errors.Is(err, ErrNoPort) {
		t.Errorf("New() without port error = %v, want ErrNoPort", err)
	}
}
