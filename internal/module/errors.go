package module

import "errors"

// Domain errors for the module package.
var (
	// ErrNotStarted is returned when a module sends before it has an address.
	ErrNotStarted = errors.New("module: not started")

	// ErrNoPort is returned by New without a bus port.
	ErrNoPort = errors.New("module: bus port is required")
)
