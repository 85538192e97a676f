package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/defuse-core/internal/audit"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/defuse-core/internal/protocol"
	"github.com/nerrad567/defuse-core/internal/registry"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT records publishes and captures the command handler.
type mockMQTT struct {
	mu           sync.Mutex
	msgs         []published
	handler      mqtt.MessageHandler
	subscribed   string
	subscribeErr error
	publishErr   error
	disconnected bool
}

func (m *mockMQTT) PublishRetained(topic string, payload []byte) error {
	return m.publish(topic, payload, true)
}

func (m *mockMQTT) PublishEvent(topic string, payload []byte) error {
	return m.publish(topic, payload, false)
}

func (m *mockMQTT) publish(topic string, payload []byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.msgs = append(m.msgs, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscribed = topic
	m.handler = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *mockMQTT) on(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.msgs {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type mockController struct {
	mu   sync.Mutex
	snap game.Snapshot
	cmds []game.Command
	err  error
}

func (c *mockController) Do(_ context.Context, cmd game.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return c.err
}

func (c *mockController) Snapshot() game.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *mockController) set(snap game.Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func newTestBridge(t *testing.T) (*Bridge, *mockMQTT, *mockController) {
	t.Helper()
	client := &mockMQTT{}
	ctrl := &mockController{snap: game.Snapshot{Seq: 1, State: game.StateIdle}}
	b, err := New(Options{
		Client:          client,
		Controller:      ctrl,
		Topics:          mqtt.NewTopics("defuse"),
		PublishInterval: 5 * time.Millisecond,
		QueueSize:       4,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, client, ctrl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{Controller: &mockController{}}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("New(no client) = %v", err)
	}
	if _, err := New(Options{Client: &mockMQTT{}}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("New(no controller) = %v", err)
	}
}

func TestPublishState_OnlyWhenSeqChanges(t *testing.T) {
	b, client, ctrl := newTestBridge(t)
	wires, _ := protocol.NewAddress(protocol.TypeWires, 1)
	ctrl.set(game.Snapshot{
		Seq:     3,
		State:   game.StateRunning,
		Modules: []registry.Record{{Address: wires, Type: protocol.TypeWires, Instance: 1, Online: true}},
	})

	b.publishState()
	b.publishState()

	states := client.on("defuse/state")
	if len(states) != 1 || !states[0].retained {
		t.Fatalf("state publishes = %+v, want one retained", states)
	}
	var snap struct {
		Seq   uint64     `json:"seq"`
		State game.State `json:"state"`
	}
	if err := json.Unmarshal(states[0].payload, &snap); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if snap.Seq != 3 || snap.State != game.StateRunning {
		t.Errorf("published snapshot = %+v", snap)
	}
	if mods := client.on("defuse/module/" + wires.String()); len(mods) != 1 {
		t.Errorf("module publishes = %d, want 1", len(mods))
	}

	// A new Seq with an identical module record republishes only the state.
	next := ctrl.Snapshot()
	next.Seq = 4
	ctrl.set(next)
	b.publishState()

	if got := len(client.on("defuse/state")); got != 2 {
		t.Errorf("state publishes = %d, want 2", got)
	}
	if got := len(client.on("defuse/module/" + wires.String())); got != 1 {
		t.Errorf("unchanged module republished: %d", got)
	}
	if b.Metrics().StatePublishes != 2 {
		t.Errorf("StatePublishes = %d", b.Metrics().StatePublishes)
	}
}

func TestPublishState_RetriesAfterFailure(t *testing.T) {
	b, client, _ := newTestBridge(t)

	client.disconnected = true
	b.publishState()
	client.disconnected = false
	client.publishErr = errors.New("broker gone")
	b.publishState()
	client.publishErr = nil
	b.publishState()

	if got := len(client.on("defuse/state")); got != 1 {
		t.Errorf("state publishes = %d, want 1 after recovery", got)
	}
}

func TestHooksPublishEvents(t *testing.T) {
	b, client, _ := newTestBridge(t)
	hooks := b.Hooks()

	hooks.OnStateChange(game.StateIdle, game.StateRunning)
	hooks.OnStrikeChange(2, 3)
	hooks.OnModuleSolved(1, 4)
	hooks.OnTimeUpdate(59 * time.Second)
	hooks.OnStrikeChange(3, 3) // queue holds 4

	if b.Metrics().EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", b.Metrics().EventsDropped)
	}
	b.flushEvents()

	state := client.on("defuse/event/state")
	if len(state) != 1 || state[0].retained {
		t.Fatalf("state events = %+v", state)
	}
	var ev EventMessage
	if err := json.Unmarshal(state[0].payload, &ev); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ev.From != "idle" || ev.To != "running" {
		t.Errorf("state event = %+v", ev)
	}

	var strike EventMessage
	if err := json.Unmarshal(client.on("defuse/event/strike")[0].payload, &strike); err != nil {
		t.Fatalf("strike payload: %v", err)
	}
	if strike.Strikes == nil || *strike.Strikes != 2 || *strike.MaxStrikes != 3 {
		t.Errorf("strike event = %+v", strike)
	}
	if len(client.on("defuse/event/solved")) != 1 || len(client.on("defuse/event/time")) != 1 {
		t.Error("solved/time events missing")
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		doErr    error
		wantOp   game.Op
		wantCode string
	}{
		{"start", `{"id":"c1","command":"start"}`, nil, game.OpStart, ""},
		{"set strikes", `{"command":"set_strikes","strikes":2}`, nil, game.OpSetStrikes, ""},
		{"invalid transition", `{"command":"pause"}`, game.ErrInvalidTransition, game.OpPause, ErrCodeInvalidTransition},
		{"game over", `{"command":"strike"}`, game.ErrGameOver, game.OpStrike, ErrCodeGameOver},
		{"unknown", `{"command":"detonate"}`, nil, "", ErrCodeInvalidCommand},
		{"bad json", `{"command":`, nil, "", ErrCodeInvalidCommand},
		{"missing strikes", `{"command":"set_strikes"}`, nil, "", ErrCodeInvalidCommand},
		{"bad module", `{"command":"solve","module":"zz"}`, nil, "", ErrCodeInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, client, ctrl := newTestBridge(t)
			ctrl.err = tt.doErr

			err := b.handleCommand("defuse/command", []byte(tt.payload))
			if (err != nil) != (tt.wantCode != "") {
				t.Errorf("handleCommand() error = %v", err)
			}
			if tt.wantOp != "" && (len(ctrl.cmds) != 1 || ctrl.cmds[0].Op != tt.wantOp) {
				t.Errorf("commands = %+v, want %s", ctrl.cmds, tt.wantOp)
			}
			if tt.wantOp == "" && len(ctrl.cmds) != 0 {
				t.Errorf("invalid command reached the game: %+v", ctrl.cmds)
			}

			acks := client.on("defuse/command/ack")
			if len(acks) != 1 {
				t.Fatalf("acks = %d, want 1", len(acks))
			}
			var ack AckMessage
			if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
				t.Fatalf("ack payload: %v", err)
			}
			if tt.wantCode == "" {
				if ack.Status != AckAccepted || ack.Error != nil {
					t.Errorf("ack = %+v, want accepted", ack)
				}
			} else if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed/%s", ack, tt.wantCode)
			}
		})
	}
}

func TestToCommand(t *testing.T) {
	strikes := 2
	remaining := int64(90000)
	neg := int64(-1)

	cmd, err := CommandMessage{Command: "SET_TIME", RemainingMs: &remaining}.ToCommand()
	if err != nil || cmd.Op != game.OpSetTime || cmd.Remaining != 90*time.Second {
		t.Errorf("set_time = %+v, %v", cmd, err)
	}
	cmd, err = CommandMessage{Command: "set_strikes", Strikes: &strikes}.ToCommand()
	if err != nil || cmd.Strikes != 2 {
		t.Errorf("set_strikes = %+v, %v", cmd, err)
	}
	cmd, err = CommandMessage{Command: "solve", Module: "0x201"}.ToCommand()
	if err != nil || cmd.Module != protocol.Address(0x201) {
		t.Errorf("solve = %+v, %v", cmd, err)
	}
	if _, err := (CommandMessage{Command: "set_time", RemainingMs: &neg}).ToCommand(); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("negative set_time = %v", err)
	}
	huge := game.MaxRemainingMs + 1
	if _, err := (CommandMessage{Command: "set_time", RemainingMs: &huge}).ToCommand(); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("overflowing set_time = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	b, client, ctrl := newTestBridge(t)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if client.subscribed != "defuse/command" {
		t.Errorf("subscribed to %q", client.subscribed)
	}
	waitFor(t, "initial state", func() bool { return len(client.on("defuse/state")) == 1 })

	ctrl.set(game.Snapshot{Seq: 9, State: game.StateRunning})
	waitFor(t, "updated state", func() bool { return len(client.on("defuse/state")) == 2 })

	// Commands arrive through the subscribed handler.
	if err := client.handler("defuse/command", []byte(`{"command":"pause"}`)); err != nil {
		t.Errorf("handler error = %v", err)
	}

	b.Hooks().OnStateChange(game.StateRunning, game.StatePaused)
	b.Stop()
	b.Stop()

	if len(client.on("defuse/event/state")) != 1 {
		t.Error("queued event not flushed on stop")
	}
	if !strings.Contains(string(client.on("defuse/command/ack")[0].payload), `"accepted"`) {
		t.Error("command not acknowledged")
	}
}

func TestStart_SubscribeError(t *testing.T) {
	b, client, _ := newTestBridge(t)
	client.subscribeErr = mqtt.ErrNotConnected
	if err := b.Start(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() = %v, want ErrNotConnected", err)
	}
}

// recordingAudit keeps entries in memory.
type recordingAudit struct {
	audit.Repository
	entries []audit.Entry
}

func (a *recordingAudit) Create(_ context.Context, e *audit.Entry) error {
	a.entries = append(a.entries, *e)
	return nil
}

func TestHandleCommand_Audited(t *testing.T) {
	rec := &recordingAudit{}
	b, err := New(Options{
		Client:     &mockMQTT{},
		Controller: &mockController{snap: game.Snapshot{State: game.StateRunning}},
		Topics:     mqtt.NewTopics("defuse"),
		Audit:      rec,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	b.handleCommand("defuse/command", []byte(`{"id":"c7","command":"solve","module":"0x201","source":"desk"}`)) //nolint:errcheck // accepted
	b.handleCommand("defuse/command", []byte(`{"command":"detonate"}`))                                          //nolint:errcheck // rejected on purpose

	if len(rec.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(rec.entries))
	}
	ok := rec.entries[0]
	if ok.Command != "solve" || ok.Target != "0x201" || ok.Source != audit.SourceMQTT || ok.Result != audit.ResultOK {
		t.Errorf("accepted entry = %+v", ok)
	}
	if ok.Details["command_id"] != "c7" || ok.Details["sender"] != "desk" {
		t.Errorf("accepted details = %v", ok.Details)
	}
	if bad := rec.entries[1]; bad.Result != ErrCodeInvalidCommand || bad.Details["error"] == nil {
		t.Errorf("rejected entry = %+v", bad)
	}
}
