package bus

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// SimBus is an in-memory shared medium. Every frame sent by one endpoint
// is delivered to every other endpoint in send order, synchronously on the
// sender's goroutine; receivers are expected to only enqueue.
type SimBus struct {
	mu        sync.RWMutex
	endpoints map[*SimEndpoint]struct{}
	taps      []ReceiveFunc

	echo     bool
	dropRate float64
	rngMu    sync.Mutex
	rng      *rand.Rand
}

// SimOption configures a SimBus.
type SimOption func(*SimBus)

// WithEcho makes the sender receive its own frames, like a CAN controller
// with self-reception enabled.
func WithEcho(enabled bool) SimOption {
	return func(b *SimBus) { b.echo = enabled }
}

// WithDropRate makes each delivery fail independently with the given
// probability. seed makes the losses reproducible.
func WithDropRate(rate float64, seed uint64) SimOption {
	return func(b *SimBus) {
		b.dropRate = rate
		b.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)) //nolint:gosec // simulation only
	}
}

// NewSimBus creates an empty simulated bus.
func NewSimBus(opts ...SimOption) *SimBus {
	b := &SimBus{endpoints: make(map[*SimEndpoint]struct{})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach creates a new endpoint on the bus.
func (b *SimBus) Attach() *SimEndpoint {
	ep := &SimEndpoint{bus: b}
	b.mu.Lock()
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()
	return ep
}

// Tap registers an observer that sees every frame on the bus.
func (b *SimBus) Tap(fn ReceiveFunc) {
	b.mu.Lock()
	b.taps = append(b.taps, fn)
	b.mu.Unlock()
}

// Endpoints returns the number of attached endpoints.
func (b *SimBus) Endpoints() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints)
}

func (b *SimBus) detach(ep *SimEndpoint) {
	b.mu.Lock()
	delete(b.endpoints, ep)
	b.mu.Unlock()
}

func (b *SimBus) transmit(from *SimEndpoint, f Frame) {
	b.mu.RLock()
	targets := make([]*SimEndpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != from || b.echo {
			targets = append(targets, ep)
		}
	}
	taps := b.taps
	b.mu.RUnlock()

	for _, tap := range taps {
		tap(f)
	}
	for _, ep := range targets {
		if b.lost() {
			continue
		}
		ep.deliver(f)
	}
}

func (b *SimBus) lost() bool {
	if b.dropRate <= 0 || b.rng == nil {
		return false
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64() < b.dropRate
}

// SimEndpoint is one unit's Transport on a SimBus.
type SimEndpoint struct {
	bus *SimBus

	mu     sync.RWMutex
	recv   ReceiveFunc
	closed bool
}

// Send broadcasts a frame to the other endpoints.
func (e *SimEndpoint) Send(addr protocol.Address, data []byte) error {
	if len(data) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(data))
	}
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	e.bus.transmit(e, Frame{Address: addr, Data: buf})
	return nil
}

// SetReceiver registers the frame callback.
func (e *SimEndpoint) SetReceiver(fn ReceiveFunc) {
	e.mu.Lock()
	e.recv = fn
	e.mu.Unlock()
}

// Close detaches the endpoint from the bus.
func (e *SimEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.bus.detach(e)
	return nil
}

func (e *SimEndpoint) deliver(f Frame) {
	e.mu.RLock()
	recv := e.recv
	e.mu.RUnlock()
	if recv != nil {
		recv(f)
	}
}
