package protocol

import (
	"fmt"
)

// Frame size limits.
const (
	// HeaderSize is the sender identity + message type header.
	HeaderSize = 3
	// MaxPayload is the largest payload a message can carry.
	MaxPayload = 5
	// MaxFrameSize is the bus frame limit.
	MaxFrameSize = HeaderSize + MaxPayload
)

// MessageType is the third header byte of every frame.
type MessageType uint8

// Module to orchestrator.
const (
	MsgRegister  MessageType = 0x01
	MsgSolved    MessageType = 0x02
	MsgStrike    MessageType = 0x03
	MsgHeartbeat MessageType = 0x04
	MsgStatus    MessageType = 0x06
)

// Orchestrator to module.
const (
	MsgGameStart          MessageType = 0x10
	MsgGameStop           MessageType = 0x11
	MsgStrikeUpdate       MessageType = 0x12
	MsgSerialNumber       MessageType = 0x13
	MsgReset              MessageType = 0x14
	MsgTimeUpdate         MessageType = 0x15
	MsgCountdown          MessageType = 0x16
	MsgNeedyActivate      MessageType = 0x17
	MsgEdgeworkIndicators MessageType = 0x18
	MsgEdgeworkPorts      MessageType = 0x19
)

// Negotiation sub-protocol.
const (
	MsgProbe MessageType = 0x20
	MsgTaken MessageType = 0x21
)

// Role-specific.
const (
	MsgAudioCue       MessageType = 0x30
	MsgDisplayCommand MessageType = 0x31
)

var messageTypeNames = map[MessageType]string{
	MsgRegister:           "REGISTER",
	MsgSolved:             "SOLVED",
	MsgStrike:             "STRIKE",
	MsgHeartbeat:          "HEARTBEAT",
	MsgStatus:             "STATUS",
	MsgGameStart:          "GAME_START",
	MsgGameStop:           "GAME_STOP",
	MsgStrikeUpdate:       "STRIKE_UPDATE",
	MsgSerialNumber:       "SERIAL_NUMBER",
	MsgReset:              "RESET",
	MsgTimeUpdate:         "TIME_UPDATE",
	MsgCountdown:          "COUNTDOWN",
	MsgNeedyActivate:      "NEEDY_ACTIVATE",
	MsgEdgeworkIndicators: "EDGEWORK_INDICATORS",
	MsgEdgeworkPorts:      "EDGEWORK_PORTS",
	MsgProbe:              "PROBE",
	MsgTaken:              "TAKEN",
	MsgAudioCue:           "AUDIO_CUE",
	MsgDisplayCommand:     "DISPLAY_COMMAND",
}

// String returns the message type name.
func (m MessageType) String() string {
	if name, ok := messageTypeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MSG_0x%02X", uint8(m))
}

// IsNegotiation reports whether the type belongs to the negotiation
// sub-protocol.
func (m MessageType) IsNegotiation() bool {
	return m == MsgProbe || m == MsgTaken
}

// Message is one decoded application message: who sent it and what it says.
type Message struct {
	Sender Address
	Body   Body
}

// Type returns the body's message type.
func (m Message) Type() MessageType {
	if m.Body == nil {
		return 0
	}
	return m.Body.Type()
}

// String returns a compact description for logs.
func (m Message) String() string {
	return fmt.Sprintf("%s from %s %+v", m.Type(), m.Sender, m.Body)
}

// Encode returns the wire form of the message.
func (m Message) Encode() ([]byte, error) {
	return Encode(m.Sender, m.Body)
}

// Encode builds a frame: [senderType, senderInstance, messageType, payload...].
//
// Returns ErrPayloadTooLong if the body does not fit the 8-byte frame.
func Encode(sender Address, body Body) ([]byte, error) {
	if !sender.IsValid() {
		return nil, fmt.Errorf("%w: sender %d", ErrInvalidAddress, uint16(sender))
	}
	frame := make([]byte, HeaderSize, MaxFrameSize)
	frame[0] = byte(sender.Type())
	frame[1] = sender.Instance()
	frame[2] = byte(body.Type())
	frame = body.appendPayload(frame)
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s needs %d bytes", ErrPayloadTooLong, body.Type(), len(frame)-HeaderSize)
	}
	return frame, nil
}

// MarshalBody returns [messageType, payload...] without the sender header.
func MarshalBody(body Body) ([]byte, error) {
	out := body.appendPayload([]byte{byte(body.Type())})
	if len(out)-1 > MaxPayload {
		return nil, fmt.Errorf("%w: %s needs %d bytes", ErrPayloadTooLong, body.Type(), len(out)-1)
	}
	return out, nil
}

// Decode parses a frame into a Message.
//
// Unknown message types decode to Unknown rather than failing; callers
// log and ignore them.
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if len(frame) > MaxFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(frame))
	}

	senderType, senderInstance := frame[0], frame[1]
	if senderType > MaxType || senderInstance > MaxInstance {
		return Message{}, fmt.Errorf("%w: sender %d/%d out of range", ErrMalformed, senderType, senderInstance)
	}
	sender, err := NewAddress(ModuleType(senderType), senderInstance)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	body, err := decodeBody(MessageType(frame[2]), frame[HeaderSize:])
	if err != nil {
		return Message{}, err
	}
	return Message{Sender: sender, Body: body}, nil
}
