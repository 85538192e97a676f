// Package registry holds the orchestrator's record of every module heard
// on the bus: category, solve state, liveness and needy scheduling.
package registry
