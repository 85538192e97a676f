// Package bus is the boundary between the protocol core and the physical
// bus.
//
// A Transport moves raw frames. Two implementations exist: SimBus, an
// in-memory shared medium for tests and the simulator, and SLCAN, a USB
// serial CAN adapter driven through github.com/jacobsa/go-serial.
//
// A Port adapts a Transport to one unit's single-threaded loop:
//
//	transport goroutine            owner loop goroutine
//	───────────────────            ────────────────────
//	onFrame(f)                     for p.Pending() > 0 {
//	  accept by destination           rx, ok := p.Poll()
//	  copy into bounded queue         ... decode, loopback check, dispatch
//	  pending++                     }
//
// The receive path never decodes or mutates unit state; it only records
// that work is pending. A full queue drops the frame and counts it, since
// the bus offers no delivery guarantee anyway.
package bus
