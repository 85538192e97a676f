package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrInvalidAddress is returned when a bus address or one of its
	// parts is outside the 11-bit address space.
	ErrInvalidAddress = errors.New("protocol: invalid address")

	// ErrFrameTooShort is returned when a frame has no room for the
	// 3-byte header.
	ErrFrameTooShort = errors.New("protocol: frame too short")

	// ErrFrameTooLong is returned when a frame exceeds the 8-byte bus limit.
	ErrFrameTooLong = errors.New("protocol: frame too long")

	// ErrPayloadTooLong is returned when a message body encodes to more
	// than MaxPayload bytes.
	ErrPayloadTooLong = errors.New("protocol: payload too long")

	// ErrMalformed is returned when a payload is too short for its
	// message type or carries out-of-range values.
	ErrMalformed = errors.New("protocol: malformed payload")

	// ErrInvalidSerial is returned when a serial number cannot be packed
	// into a SERIAL_NUMBER payload.
	ErrInvalidSerial = errors.New("protocol: invalid serial number")
)
