package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ModuleType identifies the kind of unit on the bus (6 bits).
type ModuleType uint8

// Infrastructure types.
const (
	TypeTimer ModuleType = 0x00
	TypeAudio ModuleType = 0x01
)

// Regular puzzle module types.
const (
	TypeWires            ModuleType = 0x10
	TypeButton           ModuleType = 0x11
	TypeKeypad           ModuleType = 0x12
	TypeSimon            ModuleType = 0x13
	TypeWhosOnFirst      ModuleType = 0x14
	TypeMemory           ModuleType = 0x15
	TypeMorse            ModuleType = 0x16
	TypeComplicatedWires ModuleType = 0x17
	TypeWireSequences    ModuleType = 0x18
	TypeMaze             ModuleType = 0x19
	TypePassword         ModuleType = 0x1A
)

// Side panel types. These carry edgework and are never solved.
const (
	TypeSerialDisplay  ModuleType = 0x20
	TypeIndicatorPanel ModuleType = 0x21
	TypeBatteryHolder  ModuleType = 0x22
	TypePortPanel      ModuleType = 0x23
)

// Needy module types.
const (
	TypeVentingGas         ModuleType = 0x30
	TypeCapacitorDischarge ModuleType = 0x31
	TypeKnob               ModuleType = 0x32
)

// TypeBroadcast is the reserved global broadcast type.
const TypeBroadcast ModuleType = MaxType

// needyRangeStart marks the first type value reserved for needy modules.
const needyRangeStart ModuleType = 0x30

// DefaultNeedyInterval applies to needy types without a table entry.
const DefaultNeedyInterval = 30 * time.Second

var typeNames = map[ModuleType]string{
	TypeTimer:              "TIMER",
	TypeAudio:              "AUDIO",
	TypeWires:              "WIRES",
	TypeButton:             "BUTTON",
	TypeKeypad:             "KEYPAD",
	TypeSimon:              "SIMON",
	TypeWhosOnFirst:        "WHOS_ON_FIRST",
	TypeMemory:             "MEMORY",
	TypeMorse:              "MORSE",
	TypeComplicatedWires:   "COMPLICATED_WIRES",
	TypeWireSequences:      "WIRE_SEQUENCES",
	TypeMaze:               "MAZE",
	TypePassword:           "PASSWORD",
	TypeSerialDisplay:      "SERIAL_DISPLAY",
	TypeIndicatorPanel:     "INDICATOR_PANEL",
	TypeBatteryHolder:      "BATTERY_HOLDER",
	TypePortPanel:          "PORT_PANEL",
	TypeVentingGas:         "VENTING_GAS",
	TypeCapacitorDischarge: "CAPACITOR_DISCHARGE",
	TypeKnob:               "KNOB",
	TypeBroadcast:          "BROADCAST",
}

var needyIntervals = map[ModuleType]time.Duration{
	TypeVentingGas:         30 * time.Second,
	TypeCapacitorDischarge: 45 * time.Second,
	TypeKnob:               60 * time.Second,
}

// String returns the type name, or a hex form for unnamed types.
func (t ModuleType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE_0x%02X", uint8(t))
}

// ParseModuleType resolves a type name (case-insensitive) or a numeric value.
func ParseModuleType(s string) (ModuleType, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == upper {
			return t, nil
		}
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil || v > MaxType {
		return 0, fmt.Errorf("%w: unknown module type %q", ErrInvalidAddress, s)
	}
	return ModuleType(v), nil
}

// IsSingleton reports whether units of this type use the fixed address
// (T, 0) instead of negotiating an instance.
func (t ModuleType) IsSingleton() bool {
	switch t {
	case TypeTimer, TypeAudio, TypeSerialDisplay, TypeIndicatorPanel, TypeBatteryHolder, TypePortPanel:
		return true
	}
	return false
}

// Category returns how a module of this type is accounted for by the
// orchestrator. It is a pure function of the type.
func (t ModuleType) Category() Category {
	switch {
	case t >= needyRangeStart && t < TypeBroadcast:
		return CategoryNeedy
	case t.IsSingleton(), t == TypeBroadcast:
		return CategoryIgnored
	default:
		return CategoryRegular
	}
}

// NeedyInterval returns the activation interval for a needy type.
// Non-needy types return zero.
func (t ModuleType) NeedyInterval() time.Duration {
	if t.Category() != CategoryNeedy {
		return 0
	}
	if d, ok := needyIntervals[t]; ok {
		return d
	}
	return DefaultNeedyInterval
}

// Category classifies modules for win-condition accounting.
type Category uint8

// Module categories.
const (
	// CategoryRegular modules must each be solved once to win.
	CategoryRegular Category = iota
	// CategoryNeedy modules recur; an active one blocks winning.
	CategoryNeedy
	// CategoryIgnored modules (timer, audio, side panels) are never counted.
	CategoryIgnored
)

// String returns the lower-case category name.
func (c Category) String() string {
	switch c {
	case CategoryRegular:
		return "regular"
	case CategoryNeedy:
		return "needy"
	case CategoryIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// MarshalText encodes the type name.
func (t ModuleType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
