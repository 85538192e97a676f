// Package protocol implements the bus address codec and the message
// envelope shared by every unit of the device.
//
// # Addressing
//
// A bus address is 11 bits: a 6-bit module type followed by a 5-bit
// instance.
//
//	 10        5 4      0
//	┌───────────┬────────┐
//	│   type    │instance│
//	└───────────┴────────┘
//
// Instance 0 of a negotiating type is its sub-channel: PROBE and TAKEN
// traffic for that type travels there. Singleton roles (timer, audio and
// the side panels) live on (T, 0) permanently. Type 0x3F is the global
// broadcast address (0x7E0), accepted by every unit.
//
// # Frames
//
// Every application frame carries a 3-byte header and up to 5 payload bytes:
//
//	┌──────────┬──────────────┬─────────┬──────────────┐
//	│senderType│senderInstance│ msgType │ payload 0..5 │
//	└──────────┴──────────────┴─────────┴──────────────┘
//
// Payloads are never handled as raw buffers outside this package. Each
// message type maps to exactly one Body implementation (Register,
// StrikeUpdate, Probe, ...), and Encode/Decode are the only places bytes
// are produced or consumed.
//
// # Usage
//
//	frame, err := protocol.Encode(protocol.TimerAddress, protocol.StrikeUpdate{Strikes: 2})
//	// frame == []byte{0x00, 0x00, 0x12, 0x02}
//
//	msg, err := protocol.Decode(frame)
//	if su, ok := msg.Body.(protocol.StrikeUpdate); ok {
//	    fmt.Println(su.Strikes)
//	}
package protocol
