package game

import (
	"slices"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// edgeworkWidgets is the number of widgets generated per game.
const edgeworkWidgets = 5

// indicatorLitPercent is the chance an indicator is lit.
const indicatorLitPercent = 60

// Indicator is one labelled indicator light.
type Indicator struct {
	Label protocol.IndicatorLabel `json:"label"`
	Lit   bool                    `json:"lit"`
}

// Edgework is the per-game flavour data puzzle modules read. It is
// generated once when the game enters discovery and never changes.
type Edgework struct {
	Batteries      int               `json:"batteries"`
	BatteryHolders int               `json:"battery_holders"`
	Indicators     []Indicator       `json:"indicators"`
	PortPlates     [][]protocol.Port `json:"port_plates"`
}

var (
	commPlate = []protocol.Port{protocol.PortParallel, protocol.PortSerial}
	ioPlate   = []protocol.Port{protocol.PortDVI, protocol.PortPS2, protocol.PortRJ45, protocol.PortStereoRCA}
)

// GenerateEdgework rolls five widgets. Each is a battery holder (one D or
// two AA), an indicator with a label not used yet, or a port plate whose
// ports are each present on a coin flip.
func GenerateEdgework(rng Rand) Edgework {
	var e Edgework
	unused := make([]protocol.IndicatorLabel, 0, protocol.IndicatorCount)
	for l := protocol.IndicatorLabel(0); l < protocol.IndicatorCount; l++ {
		unused = append(unused, l)
	}

	for range edgeworkWidgets {
		switch rng.IntN(3) {
		case 0:
			e.BatteryHolders++
			if rng.IntN(2) == 0 {
				e.Batteries++
			} else {
				e.Batteries += 2
			}

		case 1:
			if len(unused) == 0 {
				e.BatteryHolders++
				e.Batteries++
				continue
			}
			i := rng.IntN(len(unused))
			label := unused[i]
			unused = slices.Delete(unused, i, i+1)
			e.Indicators = append(e.Indicators, Indicator{Label: label, Lit: rng.IntN(100) < indicatorLitPercent})

		default:
			layout := commPlate
			if rng.IntN(2) == 1 {
				layout = ioPlate
			}
			plate := []protocol.Port{}
			for _, p := range layout {
				if rng.IntN(2) == 1 {
					plate = append(plate, p)
				}
			}
			e.PortPlates = append(e.PortPlates, plate)
		}
	}
	return e
}

// IndicatorMessage encodes the indicators as presence and lit bitmasks.
func (e Edgework) IndicatorMessage() protocol.EdgeworkIndicators {
	var msg protocol.EdgeworkIndicators
	for _, ind := range e.Indicators {
		bit := uint16(1) << ind.Label
		msg.Present |= bit
		if ind.Lit {
			msg.Lit |= bit
		}
	}
	return msg
}

// PortMessage encodes batteries and the union of ports.
func (e Edgework) PortMessage() protocol.EdgeworkPorts {
	var mask uint8
	for _, plate := range e.PortPlates {
		for _, p := range plate {
			mask |= 1 << p
		}
	}
	return protocol.EdgeworkPorts{
		Batteries:      clampByte(e.Batteries),
		BatteryHolders: clampByte(e.BatteryHolders),
		PortPlates:     clampByte(len(e.PortPlates)),
		PortMask:       mask,
	}
}

// HasPort reports whether any plate carries p.
func (e Edgework) HasPort(p protocol.Port) bool {
	for _, plate := range e.PortPlates {
		if slices.Contains(plate, p) {
			return true
		}
	}
	return false
}

// PortCount returns the total number of ports across all plates.
func (e Edgework) PortCount() int {
	n := 0
	for _, plate := range e.PortPlates {
		n += len(plate)
	}
	return n
}

// LitIndicator reports whether an indicator with label is present and lit.
func (e Edgework) LitIndicator(label protocol.IndicatorLabel) bool {
	for _, ind := range e.Indicators {
		if ind.Label == label {
			return ind.Lit
		}
	}
	return false
}

// UnlitIndicator reports whether an indicator with label is present and unlit.
func (e Edgework) UnlitIndicator(label protocol.IndicatorLabel) bool {
	for _, ind := range e.Indicators {
		if ind.Label == label {
			return !ind.Lit
		}
	}
	return false
}

// Clone returns a deep copy.
func (e Edgework) Clone() Edgework {
	c := e
	c.Indicators = slices.Clone(e.Indicators)
	c.PortPlates = make([][]protocol.Port, len(e.PortPlates))
	for i, plate := range e.PortPlates {
		c.PortPlates[i] = slices.Clone(plate)
	}
	return c
}

func clampByte(n int) uint8 {
	return uint8(min(max(n, 0), 255)) //nolint:gosec // clamped
}
