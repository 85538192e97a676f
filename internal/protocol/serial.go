package protocol

import (
	"fmt"
	"strings"
)

// SerialLength is the number of characters in a bomb serial number.
const SerialLength = 6

// serialAlphabet maps 6-bit codes to characters. Codes 36-63 are invalid.
const serialAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	serialBitsPerChar = 6
	serialPackedSize  = 5 // 36 bits
	serialCharMask    = 1<<serialBitsPerChar - 1
)

// PackSerial packs a six character serial into 36 bits so that it fits a
// single 5-byte payload. Character i occupies bits 6i..6i+5, little-endian.
func PackSerial(serial string) ([serialPackedSize]byte, error) {
	var out [serialPackedSize]byte
	if len(serial) != SerialLength {
		return out, fmt.Errorf("%w: want %d characters, got %q", ErrInvalidSerial, SerialLength, serial)
	}

	var bits uint64
	for i := 0; i < SerialLength; i++ {
		code := strings.IndexByte(serialAlphabet, serial[i])
		if code < 0 {
			return out, fmt.Errorf("%w: %q is not 0-9 or A-Z", ErrInvalidSerial, serial[i])
		}
		bits |= uint64(code) << (serialBitsPerChar * i) //nolint:gosec // code is 0-35
	}
	for i := range out {
		out[i] = byte(bits >> (8 * i))
	}
	return out, nil
}

// UnpackSerial reverses PackSerial.
func UnpackSerial(packed [serialPackedSize]byte) (string, error) {
	var bits uint64
	for i, b := range packed {
		bits |= uint64(b) << (8 * i)
	}

	var sb strings.Builder
	sb.Grow(SerialLength)
	for i := 0; i < SerialLength; i++ {
		code := (bits >> (serialBitsPerChar * i)) & serialCharMask
		if code >= uint64(len(serialAlphabet)) {
			return "", fmt.Errorf("%w: code %d at position %d", ErrInvalidSerial, code, i)
		}
		sb.WriteByte(serialAlphabet[code])
	}
	return sb.String(), nil
}
