package bus

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// DefaultQueueSize bounds the receive queue of a Port.
const DefaultQueueSize = 64

// Received is a decoded message together with the address it was sent to.
type Received struct {
	Dest protocol.Address
	protocol.Message
}

// PortOptions configures a Port.
type PortOptions struct {
	// Transport is the physical bus. Required.
	Transport Transport

	// Local is the unit's address. For a negotiating module this starts as
	// its type's sub-channel and is replaced with SetLocal once claimed.
	Local protocol.Address

	// QueueSize bounds buffered frames. Defaults to DefaultQueueSize.
	QueueSize int

	// AcceptAll disables address filtering (bus monitor).
	AcceptAll bool

	// Logger for dropped and malformed frames. Defaults to a no-op logger.
	Logger Logger
}

// Port is one unit's attachment to the bus.
//
// The transport's receive callback only filters by destination (like a
// controller's acceptance filter), copies the frame into a bounded queue
// and bumps the pending counter. Decoding and every state change happen
// in Poll, called from the owner's loop goroutine.
type Port struct {
	transport Transport
	logger    Logger
	acceptAll bool

	local   atomic.Uint32
	pending atomic.Int32
	closed  atomic.Bool
	queue   chan Frame

	stats counters
}

// NewPort attaches a Port to a transport.
func NewPort(opts PortOptions) (*Port, error) {
	if opts.Transport == nil {
		return nil, errors.New("bus: transport is required")
	}
	if !opts.Local.IsValid() {
		return nil, fmt.Errorf("%w: local %d", protocol.ErrInvalidAddress, uint16(opts.Local))
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Port{
		transport: opts.Transport,
		logger:    logger,
		acceptAll: opts.AcceptAll,
		queue:     make(chan Frame, size),
	}
	p.local.Store(uint32(opts.Local))
	opts.Transport.SetReceiver(p.onFrame)
	return p, nil
}

// Local returns the current local address.
func (p *Port) Local() protocol.Address {
	return protocol.Address(p.local.Load()) //nolint:gosec // stored from an Address
}

// SetLocal changes the local address, e.g. after negotiation.
func (p *Port) SetLocal(addr protocol.Address) {
	p.local.Store(uint32(addr))
}

// Pending returns the number of queued frames not yet polled.
func (p *Port) Pending() int {
	return int(p.pending.Load())
}

// onFrame is the receive callback. It never blocks.
func (p *Port) onFrame(f Frame) {
	p.stats.received.Add(1)
	if p.closed.Load() {
		return
	}
	if !p.accepts(f.Address) {
		p.stats.filtered.Add(1)
		return
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	select {
	case p.queue <- Frame{Address: f.Address, Data: data}:
		p.pending.Add(1)
	default:
		p.stats.overflow.Add(1)
	}
}

func (p *Port) accepts(dest protocol.Address) bool {
	if p.acceptAll || dest.IsBroadcast() {
		return true
	}
	local := p.Local()
	return dest == local || dest == protocol.SubChannel(local.Type())
}

// Poll returns the next decoded message without blocking. Malformed frames
// and our own echoed frames are counted and skipped.
func (p *Port) Poll() (Received, bool) {
	for {
		var f Frame
		select {
		case f = <-p.queue:
			p.pending.Add(-1)
		default:
			return Received{}, false
		}

		msg, err := protocol.Decode(f.Data)
		if err != nil {
			p.stats.malformed.Add(1)
			p.logger.Debug("dropping malformed frame", "frame", f.String(), "error", err)
			continue
		}
		if p.isLoopback(msg.Sender) {
			p.stats.loopback.Add(1)
			continue
		}
		p.stats.delivered.Add(1)
		return Received{Dest: f.Address, Message: msg}, true
	}
}

// Drain polls every queued message, handing each to fn.
func (p *Port) Drain(fn func(Received)) int {
	n := 0
	for {
		rx, ok := p.Poll()
		if !ok {
			return n
		}
		fn(rx)
		n++
	}
}

// isLoopback reports frames we sent ourselves. While negotiating, the
// local address is a shared sub-channel and echo detection is left to the
// negotiation nonce.
func (p *Port) isLoopback(sender protocol.Address) bool {
	local := p.Local()
	return sender == local && !local.IsSubChannel()
}

// Send encodes body with the local address as sender and writes it to dest.
func (p *Port) Send(dest protocol.Address, body protocol.Body) error {
	if p.closed.Load() {
		return ErrClosed
	}
	frame, err := protocol.Encode(p.Local(), body)
	if err != nil {
		p.stats.sendErrors.Add(1)
		return err
	}
	if err := p.transport.Send(dest, frame); err != nil {
		p.stats.sendErrors.Add(1)
		return fmt.Errorf("sending %s to %s: %w", body.Type(), dest, err)
	}
	p.stats.sent.Add(1)
	return nil
}

// Close detaches the port and closes the transport.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.transport.SetReceiver(nil)
	return p.transport.Close()
}

// Stats returns a copy of the port counters.
func (p *Port) Stats() Stats {
	return Stats{
		Received:   p.stats.received.Load(),
		Filtered:   p.stats.filtered.Load(),
		Overflow:   p.stats.overflow.Load(),
		Malformed:  p.stats.malformed.Load(),
		Loopback:   p.stats.loopback.Load(),
		Delivered:  p.stats.delivered.Load(),
		Sent:       p.stats.sent.Load(),
		SendErrors: p.stats.sendErrors.Load(),
		Pending:    p.Pending(),
	}
}

type counters struct {
	received   atomic.Uint64
	filtered   atomic.Uint64
	overflow   atomic.Uint64
	malformed  atomic.Uint64
	loopback   atomic.Uint64
	delivered  atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64
}

// Stats is a snapshot of port traffic counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Filtered   uint64 `json:"filtered"`
	Overflow   uint64 `json:"overflow"`
	Malformed  uint64 `json:"malformed"`
	Loopback   uint64 `json:"loopback"`
	Delivered  uint64 `json:"delivered"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
	Pending    int    `json:"pending"`
}
