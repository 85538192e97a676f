package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, registry.ErrModuleNotFound) {
//	    // handle unknown module
//	}
var (
	// ErrModuleNotFound is returned when an address has no record.
	ErrModuleNotFound = errors.New("registry: module not found")

	// ErrInvalidModule is returned for addresses that can never be a
	// module: the broadcast address, a negotiation sub-channel, or the
	// orchestrator itself.
	ErrInvalidModule = errors.New("registry: invalid module address")
)
