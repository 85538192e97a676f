package negotiation

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// newRand seeds a PCG generator from the system entropy source so that
// modules booting together draw different delays.
func newRand() *rand.Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // jitter only
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))) //nolint:gosec // jitter only
}
