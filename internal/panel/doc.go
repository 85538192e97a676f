// Package panel serves the operator console, a single page that shows the
// bomb's timer, strikes and module roster over the API WebSocket and
// sends game commands to the REST API.
//
// The page is embedded into the binary with go:embed. A directory on disk
// can replace it during development.
package panel
