package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is an 11-bit bus address.
//
// Layout: TTTT TTII III (type in the upper 6 bits, instance in the lower 5)
//   - Type:     0-63
//   - Instance: 0-31
//
// Instance 0 of a type is that type's negotiation sub-channel. Singleton
// roles (timer, audio, side panels) sit on instance 0 permanently and never
// negotiate.
type Address uint16

// Address space limits.
const (
	TypeBits     = 6
	InstanceBits = 5

	MaxType     = 1<<TypeBits - 1     // 63
	MaxInstance = 1<<InstanceBits - 1 // 31

	typeMask     = MaxType
	instanceMask = MaxInstance

	// MaxAddress is the largest valid 11-bit address.
	MaxAddress Address = 1<<(TypeBits+InstanceBits) - 1
)

// Well-known addresses.
var (
	// BroadcastAddress is accepted by every unit on the bus.
	BroadcastAddress = mustAddress(TypeBroadcast, 0)

	// TimerAddress is the orchestrator's fixed address.
	TimerAddress = mustAddress(TypeTimer, 0)

	// AudioAddress is the sound unit's fixed address.
	AudioAddress = mustAddress(TypeAudio, 0)

	// DisplayAddress is the serial number display's fixed address.
	DisplayAddress = mustAddress(TypeSerialDisplay, 0)
)

// NewAddress packs a module type and instance into an address.
//
// Returns ErrInvalidAddress if either part is out of range.
func NewAddress(t ModuleType, instance uint8) (Address, error) {
	if t > MaxType {
		return 0, fmt.Errorf("%w: type must be 0-%d, got %d", ErrInvalidAddress, MaxType, t)
	}
	if instance > MaxInstance {
		return 0, fmt.Errorf("%w: instance must be 0-%d, got %d", ErrInvalidAddress, MaxInstance, instance)
	}
	return Address(uint16(t)<<InstanceBits | uint16(instance)), nil
}

func mustAddress(t ModuleType, instance uint8) Address {
	a, err := NewAddress(t, instance)
	if err != nil {
		panic(err)
	}
	return a
}

// SubChannel returns the negotiation sub-channel (instance 0) of a type.
func SubChannel(t ModuleType) Address {
	return Address(uint16(t&typeMask) << InstanceBits)
}

// AddressFromUint16 validates a raw bus identifier.
func AddressFromUint16(v uint16) (Address, error) {
	if v > uint16(MaxAddress) {
		return 0, fmt.Errorf("%w: 0x%X exceeds 11 bits", ErrInvalidAddress, v)
	}
	return Address(v), nil
}

// ParseAddress parses an address string.
//
// Accepts formats:
//   - "0x201"  hexadecimal bus identifier
//   - "513"    decimal bus identifier
//   - "16/1"   type/instance (each part decimal or 0x-prefixed hex)
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if typ, inst, ok := strings.Cut(s, "/"); ok {
		t, err := strconv.ParseUint(strings.TrimSpace(typ), 0, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: bad type in %q", ErrInvalidAddress, s)
		}
		i, err := strconv.ParseUint(strings.TrimSpace(inst), 0, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: bad instance in %q", ErrInvalidAddress, s)
		}
		return NewAddress(ModuleType(t), uint8(i))
	}

	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return AddressFromUint16(uint16(v))
}

// Type returns the module type part of the address.
func (a Address) Type() ModuleType {
	return ModuleType((uint16(a) >> InstanceBits) & typeMask) //nolint:gosec // masked to 6 bits
}

// Instance returns the instance part of the address.
func (a Address) Instance() uint8 {
	return uint8(uint16(a) & instanceMask) //nolint:gosec // masked to 5 bits
}

// Split returns both parts of the address.
func (a Address) Split() (ModuleType, uint8) {
	return a.Type(), a.Instance()
}

// IsBroadcast reports whether the address is the global broadcast address.
func (a Address) IsBroadcast() bool {
	return a.Type() == TypeBroadcast
}

// IsSubChannel reports whether the address is a type's negotiation
// sub-channel. Singleton types have no sub-channel; their instance 0 is
// their operating address.
func (a Address) IsSubChannel() bool {
	return a.Instance() == 0 && !a.Type().IsSingleton() && !a.IsBroadcast()
}

// IsValid reports whether the address fits in 11 bits.
func (a Address) IsValid() bool {
	return a <= MaxAddress
}

// String returns the address as a hex bus identifier, e.g. "0x201".
func (a Address) String() string {
	return fmt.Sprintf("0x%03X", uint16(a))
}

// Describe returns a human readable form, e.g. "WIRES/1 (0x201)".
func (a Address) Describe() string {
	return fmt.Sprintf("%s/%d (%s)", a.Type(), a.Instance(), a)
}

// MarshalText encodes the address as its hex string.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses any format accepted by ParseAddress.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
