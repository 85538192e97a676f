package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Body is the typed content of a message. Each message type has exactly
// one concrete Body; payload bytes exist only inside Encode and Decode.
type Body interface {
	Type() MessageType
	appendPayload(dst []byte) []byte
}

// ModuleState is the module-reported puzzle state carried in STATUS and
// extended HEARTBEAT payloads.
type ModuleState uint8

// Module-reported states.
const (
	ModuleIdle ModuleState = iota
	ModuleArmed
	ModuleSolved
	ModuleFault
)

// String returns the state name.
func (s ModuleState) String() string {
	switch s {
	case ModuleIdle:
		return "idle"
	case ModuleArmed:
		return "armed"
	case ModuleSolved:
		return "solved"
	case ModuleFault:
		return "fault"
	default:
		return fmt.Sprintf("state_%d", uint8(s))
	}
}

// MarshalText encodes the state name.
func (s ModuleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ModuleReport is the status triple a module attaches to heartbeats.
type ModuleReport struct {
	State    ModuleState `json:"state"`
	Solved   bool        `json:"solved"`
	Progress uint8       `json:"progress"`
}

func (r ModuleReport) appendTo(dst []byte) []byte {
	return append(dst, byte(r.State), boolByte(r.Solved), r.Progress)
}

// Register announces a module to the orchestrator. Identity is in the header.
type Register struct{}

// Solved reports the module's puzzle as solved.
type Solved struct{}

// Strike reports a mistake on the module.
type Strike struct{}

// Heartbeat is the periodic liveness message. Report is optional.
type Heartbeat struct {
	Report *ModuleReport
}

// Status is an explicit status report.
type Status struct {
	ModuleReport
	Strikes uint8
}

// GameStart starts (or resumes) play on every module.
type GameStart struct{}

// GameStop freezes play on every module.
type GameStop struct{}

// StrikeUpdate carries the authoritative strike count.
type StrikeUpdate struct {
	Strikes uint8
}

// SerialNumber carries the bomb's six character serial number.
type SerialNumber struct {
	Serial string
}

// Reset returns modules to their power-on state; they re-register.
type Reset struct{}

// TimeUpdate carries the remaining countdown time.
type TimeUpdate struct {
	RemainingMs uint32
}

// Countdown carries the seconds left in the pre-game countdown.
type Countdown struct {
	Seconds uint8
}

// NeedyActivate triggers a needy module.
type NeedyActivate struct {
	IntervalSeconds uint8
}

// EdgeworkIndicators carries indicator presence and lit state as bitmasks
// indexed by IndicatorLabel.
type EdgeworkIndicators struct {
	Present uint16
	Lit     uint16
}

// EdgeworkPorts carries battery and port edgework. PortMask bit i is set
// when at least one plate has Port(i).
type EdgeworkPorts struct {
	Batteries      uint8
	BatteryHolders uint8
	PortPlates     uint8
	PortMask       uint8
}

// Probe asks whether (ModuleType, Candidate) is already held.
//
// HasNonce marks the optional 16-bit tie-break nonce.
type Probe struct {
	ModuleType ModuleType
	Candidate  uint8
	Nonce      uint16
	HasNonce   bool
}

// Taken answers a Probe for an instance that is in use.
type Taken struct {
	ModuleType ModuleType
	Candidate  uint8
}

// AudioCue asks the sound unit to play a cue.
type AudioCue struct {
	Cue Cue
}

// DisplayCommand drives the serial number display.
type DisplayCommand struct {
	Command DisplayOp
	Args    []byte
}

// Unknown holds a message whose type this build does not understand.
type Unknown struct {
	Kind    MessageType
	Payload []byte
}

func (Register) Type() MessageType           { return MsgRegister }
func (Solved) Type() MessageType             { return MsgSolved }
func (Strike) Type() MessageType             { return MsgStrike }
func (Heartbeat) Type() MessageType          { return MsgHeartbeat }
func (Status) Type() MessageType             { return MsgStatus }
func (GameStart) Type() MessageType          { return MsgGameStart }
func (GameStop) Type() MessageType           { return MsgGameStop }
func (StrikeUpdate) Type() MessageType       { return MsgStrikeUpdate }
func (SerialNumber) Type() MessageType       { return MsgSerialNumber }
func (Reset) Type() MessageType              { return MsgReset }
func (TimeUpdate) Type() MessageType         { return MsgTimeUpdate }
func (Countdown) Type() MessageType          { return MsgCountdown }
func (NeedyActivate) Type() MessageType      { return MsgNeedyActivate }
func (EdgeworkIndicators) Type() MessageType { return MsgEdgeworkIndicators }
func (EdgeworkPorts) Type() MessageType      { return MsgEdgeworkPorts }
func (Probe) Type() MessageType              { return MsgProbe }
func (Taken) Type() MessageType              { return MsgTaken }
func (AudioCue) Type() MessageType           { return MsgAudioCue }
func (DisplayCommand) Type() MessageType     { return MsgDisplayCommand }
func (u Unknown) Type() MessageType          { return u.Kind }

func (Register) appendPayload(dst []byte) []byte  { return dst }
func (Solved) appendPayload(dst []byte) []byte    { return dst }
func (Strike) appendPayload(dst []byte) []byte    { return dst }
func (GameStart) appendPayload(dst []byte) []byte { return dst }
func (GameStop) appendPayload(dst []byte) []byte  { return dst }
func (Reset) appendPayload(dst []byte) []byte     { return dst }

func (h Heartbeat) appendPayload(dst []byte) []byte {
	if h.Report == nil {
		return dst
	}
	return h.Report.appendTo(dst)
}

func (s Status) appendPayload(dst []byte) []byte {
	return append(s.ModuleReport.appendTo(dst), s.Strikes)
}

func (s StrikeUpdate) appendPayload(dst []byte) []byte {
	return append(dst, s.Strikes)
}

// appendPayload writes the packed serial. Callers validate with
// PackSerial first; an unpackable serial encodes as all zeros.
func (s SerialNumber) appendPayload(dst []byte) []byte {
	packed, err := PackSerial(s.Serial)
	if err != nil {
		packed = [serialPackedSize]byte{}
	}
	return append(dst, packed[:]...)
}

func (t TimeUpdate) appendPayload(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, t.RemainingMs)
}

func (c Countdown) appendPayload(dst []byte) []byte {
	return append(dst, c.Seconds)
}

func (n NeedyActivate) appendPayload(dst []byte) []byte {
	return append(dst, n.IntervalSeconds)
}

func (e EdgeworkIndicators) appendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, e.Present)
	return binary.LittleEndian.AppendUint16(dst, e.Lit)
}

func (e EdgeworkPorts) appendPayload(dst []byte) []byte {
	return append(dst, e.Batteries, e.BatteryHolders, e.PortPlates, e.PortMask)
}

func (p Probe) appendPayload(dst []byte) []byte {
	dst = append(dst, byte(p.ModuleType), p.Candidate)
	if p.HasNonce {
		dst = binary.LittleEndian.AppendUint16(dst, p.Nonce)
	}
	return dst
}

func (t Taken) appendPayload(dst []byte) []byte {
	return append(dst, byte(t.ModuleType), t.Candidate)
}

func (a AudioCue) appendPayload(dst []byte) []byte {
	return append(dst, byte(a.Cue))
}

func (d DisplayCommand) appendPayload(dst []byte) []byte {
	return append(append(dst, byte(d.Command)), d.Args...)
}

func (u Unknown) appendPayload(dst []byte) []byte {
	return append(dst, u.Payload...)
}

// NewTimeUpdate builds a TimeUpdate from a duration, saturating at the
// u32 millisecond range and at zero.
func NewTimeUpdate(remaining time.Duration) TimeUpdate {
	ms := remaining.Milliseconds()
	switch {
	case ms < 0:
		ms = 0
	case ms > int64(^uint32(0)):
		ms = int64(^uint32(0))
	}
	return TimeUpdate{RemainingMs: uint32(ms)} //nolint:gosec // clamped above
}

// Remaining returns the carried time as a duration.
func (t TimeUpdate) Remaining() time.Duration {
	return time.Duration(t.RemainingMs) * time.Millisecond
}

// Interval returns the carried needy interval as a duration.
func (n NeedyActivate) Interval() time.Duration {
	return time.Duration(n.IntervalSeconds) * time.Second
}

func decodeBody(mt MessageType, p []byte) (Body, error) {
	switch mt {
	case MsgRegister:
		return Register{}, nil
	case MsgSolved:
		return Solved{}, nil
	case MsgStrike:
		return Strike{}, nil
	case MsgGameStart:
		return GameStart{}, nil
	case MsgGameStop:
		return GameStop{}, nil
	case MsgReset:
		return Reset{}, nil

	case MsgHeartbeat:
		if len(p) == 0 {
			return Heartbeat{}, nil
		}
		if err := need(mt, p, 3); err != nil {
			return nil, err
		}
		r := decodeReport(p)
		return Heartbeat{Report: &r}, nil

	case MsgStatus:
		if err := need(mt, p, 4); err != nil {
			return nil, err
		}
		return Status{ModuleReport: decodeReport(p), Strikes: p[3]}, nil

	case MsgStrikeUpdate:
		if err := need(mt, p, 1); err != nil {
			return nil, err
		}
		return StrikeUpdate{Strikes: p[0]}, nil

	case MsgSerialNumber:
		if err := need(mt, p, serialPackedSize); err != nil {
			return nil, err
		}
		serial, err := UnpackSerial([serialPackedSize]byte(p[:serialPackedSize]))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return SerialNumber{Serial: serial}, nil

	case MsgTimeUpdate:
		if err := need(mt, p, 4); err != nil {
			return nil, err
		}
		return TimeUpdate{RemainingMs: binary.LittleEndian.Uint32(p)}, nil

	case MsgCountdown:
		if err := need(mt, p, 1); err != nil {
			return nil, err
		}
		return Countdown{Seconds: p[0]}, nil

	case MsgNeedyActivate:
		if len(p) == 0 {
			return NeedyActivate{}, nil
		}
		return NeedyActivate{IntervalSeconds: p[0]}, nil

	case MsgEdgeworkIndicators:
		if err := need(mt, p, 4); err != nil {
			return nil, err
		}
		return EdgeworkIndicators{
			Present: binary.LittleEndian.Uint16(p[0:2]),
			Lit:     binary.LittleEndian.Uint16(p[2:4]),
		}, nil

	case MsgEdgeworkPorts:
		if err := need(mt, p, 4); err != nil {
			return nil, err
		}
		return EdgeworkPorts{Batteries: p[0], BatteryHolders: p[1], PortPlates: p[2], PortMask: p[3]}, nil

	case MsgProbe:
		if err := need(mt, p, 2); err != nil {
			return nil, err
		}
		if err := checkCandidate(mt, p[0], p[1]); err != nil {
			return nil, err
		}
		probe := Probe{ModuleType: ModuleType(p[0]), Candidate: p[1]}
		if len(p) >= 4 {
			probe.Nonce = binary.LittleEndian.Uint16(p[2:4])
			probe.HasNonce = true
		}
		return probe, nil

	case MsgTaken:
		if err := need(mt, p, 2); err != nil {
			return nil, err
		}
		if err := checkCandidate(mt, p[0], p[1]); err != nil {
			return nil, err
		}
		return Taken{ModuleType: ModuleType(p[0]), Candidate: p[1]}, nil

	case MsgAudioCue:
		if err := need(mt, p, 1); err != nil {
			return nil, err
		}
		return AudioCue{Cue: Cue(p[0])}, nil

	case MsgDisplayCommand:
		if err := need(mt, p, 1); err != nil {
			return nil, err
		}
		return DisplayCommand{Command: DisplayOp(p[0]), Args: clone(p[1:])}, nil

	default:
		return Unknown{Kind: mt, Payload: clone(p)}, nil
	}
}

func decodeReport(p []byte) ModuleReport {
	return ModuleReport{State: ModuleState(p[0]), Solved: p[1] != 0, Progress: p[2]}
}

func need(mt MessageType, p []byte, n int) error {
	if len(p) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrMalformed, mt, n, len(p))
	}
	return nil
}

func checkCandidate(mt MessageType, t, candidate byte) error {
	if t > MaxType || candidate > MaxInstance {
		return fmt.Errorf("%w: %s for %d/%d out of range", ErrMalformed, mt, t, candidate)
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func clone(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
