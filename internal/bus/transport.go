package bus

import (
	"fmt"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// Frame is one raw bus frame: the routing address and up to 8 data bytes.
type Frame struct {
	Address protocol.Address
	Data    []byte
}

// String returns the frame in candump style, e.g. "0x201 [3] 10 01 02".
func (f Frame) String() string {
	return fmt.Sprintf("%s [%d] % X", f.Address, len(f.Data), f.Data)
}

// ReceiveFunc is invoked once per frame arriving from the bus. It runs on
// the transport's own goroutine and must only record the frame.
type ReceiveFunc func(Frame)

// Transport is the physical bus boundary.
//
// Implementations:
//   - SimBus endpoints (in-memory shared medium, used by tests and the simulator)
//   - SLCAN (USB serial CAN adapter speaking the Lawicel protocol)
type Transport interface {
	// Send writes a frame to the bus. Data must be at most 8 bytes.
	Send(addr protocol.Address, data []byte) error

	// SetReceiver registers the callback for arriving frames. Frames that
	// arrive with no receiver set are discarded.
	SetReceiver(fn ReceiveFunc)

	// Close releases the transport.
	Close() error
}

// Logger defines the logging interface used by the bus package.
// *logging.Logger from the infrastructure package satisfies it.
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
