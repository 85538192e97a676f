package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/defuse-core/internal/audit"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/infrastructure/mqtt"
)

const (
	defaultPublishInterval = 250 * time.Millisecond
	defaultCommandTimeout  = 2 * time.Second
	defaultQueueSize       = 128
)

// Controller is the game loop as seen by the bridge. *game.Runner satisfies it.
type Controller interface {
	Do(ctx context.Context, cmd game.Command) error
	Snapshot() game.Snapshot
}

// MQTTClient is the broker connection. *mqtt.Client satisfies it.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures New.
type Options struct {
	Client     MQTTClient
	Controller Controller
	Topics     mqtt.Topics
	Logger     Logger

	// PublishInterval is how often the snapshot is checked for changes.
	PublishInterval time.Duration

	// CommandTimeout bounds each command sent to the game loop.
	CommandTimeout time.Duration

	// QueueSize bounds pending events; overflow is dropped and counted.
	QueueSize int

	// Audit records every received command. Optional.
	Audit audit.Repository
}

// Bridge mirrors the game onto MQTT and accepts operator commands from it.
//
// The retained state topic always carries the latest snapshot; events are
// queued from game hooks and published from the bridge goroutine, so the
// game loop never waits on the broker.
type Bridge struct {
	client   MQTTClient
	ctrl     Controller
	topics   mqtt.Topics
	logger   Logger
	interval time.Duration
	timeout  time.Duration
	audit    audit.Repository

	events chan EventMessage

	// Owned by the publish goroutine.
	lastSeq   uint64
	published bool
	modules   map[string][]byte

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	commands       atomic.Uint64
	commandErrors  atomic.Uint64
	statePublishes atomic.Uint64
	eventsDropped  atomic.Uint64
}

// New validates opts and returns a stopped bridge. Register Hooks with the
// orchestrator before its loop starts.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: MQTT client", ErrMissingDependency)
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("%w: controller", ErrMissingDependency)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = defaultPublishInterval
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client:   opts.Client,
		ctrl:     opts.Controller,
		topics:   opts.Topics,
		logger:   opts.Logger,
		interval: opts.PublishInterval,
		timeout:  opts.CommandTimeout,
		audit:    opts.Audit,
		events:   make(chan EventMessage, opts.QueueSize),
		modules:  make(map[string][]byte),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Hooks returns orchestrator hooks that queue events for publishing.
func (b *Bridge) Hooks() game.Hooks {
	return game.Hooks{
		OnStateChange: func(old, new game.State) {
			b.enqueue(EventMessage{Kind: mqtt.EventState, From: old.String(), To: new.String()})
		},
		OnStrikeChange: func(strikes, max int) {
			b.enqueue(EventMessage{Kind: mqtt.EventStrike, Strikes: intPtr(strikes), MaxStrikes: intPtr(max)})
		},
		OnModuleSolved: func(solved, total int) {
			b.enqueue(EventMessage{Kind: mqtt.EventSolved, Solved: intPtr(solved), Total: intPtr(total)})
		},
		OnTimeUpdate: func(remaining time.Duration) {
			ms := remaining.Milliseconds()
			b.enqueue(EventMessage{Kind: mqtt.EventTime, Remaining: &ms})
		},
	}
}

func (b *Bridge) enqueue(ev EventMessage) {
	ev.Timestamp = time.Now().UTC()
	select {
	case b.events <- ev:
	default:
		b.eventsDropped.Add(1)
	}
}

// Start subscribes to the command topic and starts publishing. The bridge
// runs until ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.client.Subscribe(b.topics.Command(), 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("bridge subscribed to commands", "topic", b.topics.Command())

	b.wg.Add(1)
	go b.loop(ctx)
	return nil
}

// Stop halts publishing and waits for the goroutine to exit.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.publishState()
	for {
		select {
		case <-ctx.Done():
			b.flushEvents()
			return
		case <-b.ctx.Done():
			b.flushEvents()
			return
		case ev := <-b.events:
			b.publishEvent(ev)
		case <-ticker.C:
			b.publishState()
		}
	}
}

func (b *Bridge) flushEvents() {
	for {
		select {
		case ev := <-b.events:
			b.publishEvent(ev)
		default:
			return
		}
	}
}

func (b *Bridge) publishEvent(ev EventMessage) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshal event", "kind", ev.Kind, "error", err)
		return
	}
	if err := b.client.PublishEvent(b.topics.Event(ev.Kind), payload); err != nil {
		b.logger.Debug("publish event failed", "kind", ev.Kind, "error", err)
	}
}

// publishState publishes the snapshot when its Seq has moved, plus any
// module records that changed since they were last published.
func (b *Bridge) publishState() {
	if !b.client.IsConnected() {
		return
	}
	snap := b.ctrl.Snapshot()
	if b.published && snap.Seq == b.lastSeq {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error("marshal snapshot", "error", err)
		return
	}
	if err := b.client.PublishRetained(b.topics.State(), payload); err != nil {
		b.logger.Warn("publish state failed", "error", err)
		return
	}
	b.published = true
	b.lastSeq = snap.Seq
	b.statePublishes.Add(1)

	for _, rec := range snap.Modules {
		addr := rec.Address.String()
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if bytes.Equal(b.modules[addr], data) {
			continue
		}
		if err := b.client.PublishRetained(b.topics.Module(addr), data); err != nil {
			b.logger.Debug("publish module failed", "module", addr, "error", err)
			continue
		}
		b.modules[addr] = data
	}
}

// handleCommand runs on the MQTT client's goroutine.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	b.commands.Add(1)

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		b.ack(msg, err)
		return err
	}

	cmd, err := msg.ToCommand()
	if err == nil {
		ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
		err = b.ctrl.Do(ctx, cmd)
		cancel()
	}

	b.logger.Info("operator command", "command", msg.Command, "id", msg.ID, "source", msg.Source, "error", err)
	b.ack(msg, err)
	b.record(msg, err)
	return err
}

// record writes the command to the audit log, if one is configured.
func (b *Bridge) record(msg CommandMessage, err error) {
	if b.audit == nil {
		return
	}
	entry := &audit.Entry{
		Command: msg.Command,
		Target:  msg.Module,
		Source:  audit.SourceMQTT,
		Result:  audit.ResultOK,
		Details: map[string]any{},
	}
	if entry.Command == "" {
		entry.Command = "unknown"
	}
	if msg.ID != "" {
		entry.Details["command_id"] = msg.ID
	}
	if msg.Source != "" {
		entry.Details["sender"] = msg.Source
	}
	if err != nil {
		entry.Result = errorCode(err)
		entry.Details["error"] = err.Error()
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	if aErr := b.audit.Create(ctx, entry); aErr != nil {
		b.logger.Warn("audit write failed", "command", msg.Command, "error", aErr)
	}
}

func (b *Bridge) ack(msg CommandMessage, err error) {
	ack := AckMessage{
		CommandID: msg.ID,
		Command:   msg.Command,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
		State:     b.ctrl.Snapshot().State.String(),
	}
	if err != nil {
		b.commandErrors.Add(1)
		ack.Status = AckFailed
		ack.Error = &AckError{Code: errorCode(err), Message: err.Error()}
	}

	payload, mErr := json.Marshal(ack)
	if mErr != nil {
		b.logger.Error("marshal ack", "error", mErr)
		return
	}
	if pErr := b.client.PublishEvent(b.topics.CommandAck(), payload); pErr != nil {
		b.logger.Debug("publish ack failed", "error", pErr)
	}
}

// Metrics is a snapshot of bridge counters.
type Metrics struct {
	Commands       uint64 `json:"commands"`
	CommandErrors  uint64 `json:"command_errors"`
	StatePublishes uint64 `json:"state_publishes"`
	EventsDropped  uint64 `json:"events_dropped"`
}

// Metrics returns the bridge counters.
func (b *Bridge) Metrics() Metrics {
	return Metrics{
		Commands:       b.commands.Load(),
		CommandErrors:  b.commandErrors.Load(),
		StatePublishes: b.statePublishes.Load(),
		EventsDropped:  b.eventsDropped.Load(),
	}
}
