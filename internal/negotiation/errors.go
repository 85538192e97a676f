package negotiation

import "errors"

// Domain errors for the negotiation package.
var (
	// ErrSingleton is returned when negotiation is requested for a type
	// that lives on a fixed address.
	ErrSingleton = errors.New("negotiation: type uses a fixed address")

	// ErrNoBus is returned when no bus is supplied.
	ErrNoBus = errors.New("negotiation: bus is required")
)
