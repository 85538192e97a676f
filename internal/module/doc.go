// Package module is the module-side runtime shared by every puzzle unit:
// address negotiation at boot, registration, heartbeats, probe replies
// for the claimed instance and application of orchestrator broadcasts.
//
// The simulator drives one Module per simulated unit; firmware for a
// physical unit follows the same sequence.
package module
