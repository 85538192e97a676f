package bus

import "errors"

// Domain errors for the bus package.
var (
	// ErrClosed is returned when sending on a closed transport or port.
	ErrClosed = errors.New("bus: transport closed")

	// ErrFrameTooLong is returned when a frame exceeds the 8-byte bus limit.
	ErrFrameTooLong = errors.New("bus: frame too long")

	// ErrAdapter is returned when the serial CAN adapter rejects a command
	// or produces an unparseable line.
	ErrAdapter = errors.New("bus: adapter error")

	// ErrUnsupportedBitrate is returned for bitrates the adapter cannot set.
	ErrUnsupportedBitrate = errors.New("bus: unsupported bitrate")
)
