package protocol

import "fmt"

// Cue identifies a sound on the audio unit.
type Cue uint8

// Audio cues.
const (
	CueBeepNormal       Cue = 0x01
	CueBeepFast         Cue = 0x02
	CueBeepHigh         Cue = 0x03
	CueStrike           Cue = 0x04
	CueDefused          Cue = 0x05
	CueExploded         Cue = 0x06
	CueCorrectTime      Cue = 0x07
	CueGameOverFanfare  Cue = 0x08
	CueAlarmClockBeep   Cue = 0x09
	CueAlarmClockSnooze Cue = 0x0A
	CueAlarmEmergency   Cue = 0x0B

	CueSimonRed    Cue = 0x10
	CueSimonBlue   Cue = 0x11
	CueSimonGreen  Cue = 0x12
	CueSimonYellow Cue = 0x13
)

var cueNames = map[Cue]string{
	CueBeepNormal:       "beep_normal",
	CueBeepFast:         "beep_fast",
	CueBeepHigh:         "beep_high",
	CueStrike:           "strike",
	CueDefused:          "defused",
	CueExploded:         "exploded",
	CueCorrectTime:      "correct_time",
	CueGameOverFanfare:  "game_over_fanfare",
	CueAlarmClockBeep:   "alarm_clock_beep",
	CueAlarmClockSnooze: "alarm_clock_snooze",
	CueAlarmEmergency:   "alarm_emergency",
	CueSimonRed:         "simon_red",
	CueSimonBlue:        "simon_blue",
	CueSimonGreen:       "simon_green",
	CueSimonYellow:      "simon_yellow",
}

// String returns the cue name.
func (c Cue) String() string {
	if name, ok := cueNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cue_0x%02X", uint8(c))
}

// DisplayOp is a serial display command.
type DisplayOp uint8

// Display commands.
const (
	DisplaySetSerial  DisplayOp = 0x01
	DisplayClear      DisplayOp = 0x02
	DisplayShowCredit DisplayOp = 0x03
)

// Port is a physical port type found on edgework port plates.
type Port uint8

// Port types. The value is the bit index in EdgeworkPorts.PortMask.
const (
	PortParallel Port = iota
	PortSerial
	PortPS2
	PortRJ45
	PortRCA
	PortDVI
	PortStereoRCA

	portCount
)

var portNames = [portCount]string{"Parallel", "Serial", "PS/2", "RJ-45", "RCA", "DVI-D", "Stereo RCA"}

// String returns the port's display name.
func (p Port) String() string {
	if p < portCount {
		return portNames[p]
	}
	return fmt.Sprintf("port_%d", uint8(p))
}

// MarshalText encodes the port name.
func (p Port) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// IndicatorLabel is one of the eleven three-letter indicator labels.
type IndicatorLabel uint8

// Indicator labels. The value is the bit index in EdgeworkIndicators.
const (
	IndicatorSND IndicatorLabel = iota
	IndicatorCLR
	IndicatorCAR
	IndicatorIND
	IndicatorFRQ
	IndicatorSIG
	IndicatorNSA
	IndicatorMSA
	IndicatorTRN
	IndicatorBOB
	IndicatorFRK

	// IndicatorCount is the number of distinct labels.
	IndicatorCount
)

var indicatorNames = [IndicatorCount]string{"SND", "CLR", "CAR", "IND", "FRQ", "SIG", "NSA", "MSA", "TRN", "BOB", "FRK"}

// String returns the three-letter label.
func (l IndicatorLabel) String() string {
	if l < IndicatorCount {
		return indicatorNames[l]
	}
	return fmt.Sprintf("indicator_%d", uint8(l))
}

// MarshalText encodes the label.
func (l IndicatorLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
