package game

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

func TestGenerateSerialShape(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for range 200 {
		s := GenerateSerial(rng)
		if len(s) != protocol.SerialLength {
			t.Fatalf("GenerateSerial() = %q, want %d characters", s, protocol.SerialLength)
		}
		if !strings.ContainsRune(serialDigits, rune(s[2])) {
			t.Errorf("%q: third character is not a digit", s)
		}
		for _, i := range []int{3, 4} {
			if !strings.ContainsRune(serialLetters, rune(s[i])) {
				t.Errorf("%q: character %d is not a letter", s, i+1)
			}
		}
		if strings.ContainsAny(s, "IOY") {
			t.Errorf("%q contains an excluded letter", s)
		}
		if _, err := protocol.PackSerial(s); err != nil {
			t.Errorf("PackSerial(%q) error = %v", s, err)
		}
	}
}

func TestSerialHelpers(t *testing.T) {
	tests := []struct {
		serial string
		vowel  bool
		odd    bool
	}{
		{"AB3CD5", true, true},
		{"XK2FP4", false, false},
		{"QQ7ZZX", false, true},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := SerialHasVowel(tt.serial); got != tt.vowel {
			t.Errorf("SerialHasVowel(%q) = %v, want %v", tt.serial, got, tt.vowel)
		}
		if got := SerialLastDigitOdd(tt.serial); got != tt.odd {
			t.Errorf("SerialLastDigitOdd(%q) = %v, want %v", tt.serial, got, tt.odd)
		}
	}
}

func TestGenerateEdgeworkWidgets(t *testing.T) {
	for seed := range uint64(100) {
		e := GenerateEdgework(rand.New(rand.NewPCG(seed, seed+1)))

		widgets := e.BatteryHolders + len(e.Indicators) + len(e.PortPlates)
		if widgets != edgeworkWidgets {
			t.Fatalf("seed %d: %d widgets, want %d", seed, widgets, edgeworkWidgets)
		}
		if e.Batteries < e.BatteryHolders || e.Batteries > 2*e.BatteryHolders {
			t.Errorf("seed %d: %d batteries in %d holders", seed, e.Batteries, e.BatteryHolders)
		}
		seen := map[protocol.IndicatorLabel]bool{}
		for _, ind := range e.Indicators {
			if seen[ind.Label] {
				t.Errorf("seed %d: duplicate indicator %v", seed, ind.Label)
			}
			seen[ind.Label] = true
		}
		for _, plate := range e.PortPlates {
			for _, p := range plate {
				if p == protocol.PortRCA {
					t.Errorf("seed %d: RCA port on a plate", seed)
				}
			}
		}
	}
}

func TestEdgeworkMessages(t *testing.T) {
	e := Edgework{
		Batteries:      3,
		BatteryHolders: 2,
		Indicators: []Indicator{
			{Label: protocol.IndicatorCAR, Lit: true},
			{Label: protocol.IndicatorFRK, Lit: false},
		},
		PortPlates: [][]protocol.Port{
			{protocol.PortParallel},
			{protocol.PortDVI, protocol.PortRJ45},
			{},
		},
	}

	ind := e.IndicatorMessage()
	wantPresent := uint16(1)<<protocol.IndicatorCAR | uint16(1)<<protocol.IndicatorFRK
	if ind.Present != wantPresent || ind.Lit != uint16(1)<<protocol.IndicatorCAR {
		t.Errorf("IndicatorMessage() = %+v", ind)
	}

	ports := e.PortMessage()
	wantMask := uint8(1)<<protocol.PortParallel | uint8(1)<<protocol.PortDVI | uint8(1)<<protocol.PortRJ45
	if ports.Batteries != 3 || ports.BatteryHolders != 2 || ports.PortPlates != 3 || ports.PortMask != wantMask {
		t.Errorf("PortMessage() = %+v", ports)
	}

	if !e.HasPort(protocol.PortDVI) || e.HasPort(protocol.PortSerial) {
		t.Error("HasPort() wrong")
	}
	if e.PortCount() != 3 {
		t.Errorf("PortCount() = %d, want 3", e.PortCount())
	}
	if !e.LitIndicator(protocol.IndicatorCAR) || e.LitIndicator(protocol.IndicatorFRK) {
		t.Error("LitIndicator() wrong")
	}
	if !e.UnlitIndicator(protocol.IndicatorFRK) || e.UnlitIndicator(protocol.IndicatorSND) {
		t.Error("UnlitIndicator() wrong")
	}

	c := e.Clone()
	c.PortPlates[1][0] = protocol.PortPS2
	if e.PortPlates[1][0] != protocol.PortDVI {
		t.Error("Clone() shares port plates")
	}
}
