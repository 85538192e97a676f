package history

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/defuse-core/internal/game"
)

// Timestamps keep nanoseconds so a decoded snapshot compares equal.
var snapshotEncMode = sync.OnceValues(func() (cbor.EncMode, error) {
	return cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
})

// EncodeSnapshot serialises a final snapshot for the games.snapshot blob.
func EncodeSnapshot(snap *game.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	em, err := snapshotEncMode()
	if err != nil {
		return nil, fmt.Errorf("building cbor encoder: %w", err)
	}
	data, err := em.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot reverses EncodeSnapshot. Empty input yields nil.
func DecodeSnapshot(data []byte) (*game.Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var snap game.Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}
