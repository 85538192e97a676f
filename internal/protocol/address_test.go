package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestAddressRoundTrip(t *testing.T) {
	for typ := 0; typ <= MaxType; typ++ {
		for inst := 0; inst <= MaxInstance; inst++ {
			a, err := NewAddress(ModuleType(typ), uint8(inst))
			if err != nil {
				t.Fatalf("NewAddress(%d, %d) error = %v", typ, inst, err)
			}
			gotType, gotInst := a.Split()
			if gotType != ModuleType(typ) || gotInst != uint8(inst) {
				t.Fatalf("Split(%s) = %d/%d, want %d/%d", a, gotType, gotInst, typ, inst)
			}
			if !a.IsValid() {
				t.Fatalf("IsValid(%s) = false", a)
			}
		}
	}
}

func TestNewAddressRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		typ  ModuleType
		inst uint8
	}{
		{"type too large", 64, 0},
		{"instance too large", TypeWires, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAddress(tt.typ, tt.inst)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("NewAddress() error = %v, want ErrInvalidAddress", err)
			}
		})
	}
}

func TestWellKnownAddresses(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want uint16
	}{
		{"broadcast", BroadcastAddress, 0x7E0},
		{"timer", TimerAddress, 0x000},
		{"audio", AudioAddress, 0x020},
		{"display", DisplayAddress, 0x400},
		{"wires sub-channel", SubChannel(TypeWires), 0x200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if uint16(tt.addr) != tt.want {
				t.Errorf("%s = 0x%03X, want 0x%03X", tt.name, uint16(tt.addr), tt.want)
			}
		})
	}

	if !BroadcastAddress.IsBroadcast() {
		t.Error("BroadcastAddress.IsBroadcast() = false")
	}
	if !SubChannel(TypeKeypad).IsSubChannel() {
		t.Error("SubChannel(KEYPAD).IsSubChannel() = false")
	}
	if TimerAddress.IsSubChannel() {
		t.Error("TimerAddress.IsSubChannel() = true, singletons have no sub-channel")
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{in: "0x201", want: 0x201},
		{in: "513", want: 0x201},
		{in: "16/1", want: 0x201},
		{in: "0x10/0x1", want: 0x201},
		{in: " 0x7E0 ", want: BroadcastAddress},
		{in: "0x800", wantErr: true},
		{in: "16/32", wantErr: true},
		{in: "64/0", wantErr: true},
		{in: "wires", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddressTextRoundTrip(t *testing.T) {
	a, _ := NewAddress(TypeMaze, 7)
	text, err := a.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	var back Address
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q) error = %v", text, err)
	}
	if back != a {
		t.Errorf("round trip = %s, want %s", back, a)
	}
	if got := a.Describe(); got != "MAZE/7 (0x327)" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		typ      ModuleType
		want     Category
		interval time.Duration
	}{
		{TypeTimer, CategoryIgnored, 0},
		{TypeAudio, CategoryIgnored, 0},
		{TypeSerialDisplay, CategoryIgnored, 0},
		{TypePortPanel, CategoryIgnored, 0},
		{TypeWires, CategoryRegular, 0},
		{TypePassword, CategoryRegular, 0},
		{TypeVentingGas, CategoryNeedy, 30 * time.Second},
		{TypeCapacitorDischarge, CategoryNeedy, 45 * time.Second},
		{TypeKnob, CategoryNeedy, 60 * time.Second},
		{ModuleType(0x35), CategoryNeedy, DefaultNeedyInterval},
		{TypeBroadcast, CategoryIgnored, 0},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.Category(); got != tt.want {
				t.Errorf("Category() = %s, want %s", got, tt.want)
			}
			if got := tt.typ.NeedyInterval(); got != tt.interval {
				t.Errorf("NeedyInterval() = %v, want %v", got, tt.interval)
			}
		})
	}
}

func TestParseModuleType(t *testing.T) {
	tests := []struct {
		in      string
		want    ModuleType
		wantErr bool
	}{
		{in: "wires", want: TypeWires},
		{in: "KNOB", want: TypeKnob},
		{in: "0x13", want: TypeSimon},
		{in: "19", want: TypeSimon},
		{in: "64", wantErr: true},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModuleType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModuleType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseModuleType(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
