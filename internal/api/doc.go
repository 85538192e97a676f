// Package api implements the HTTP REST API and WebSocket server for defuse-core.
//
// This package provides:
//   - Read endpoints for the game snapshot, module roster, edgework and bus counters
//   - Operator commands (confirm, start, pause, resume, reset, strike, set
//     strikes, set time, solve module) forwarded to the game loop
//   - Game history backed by the history repository
//   - Command audit log, written asynchronously
//   - The operator console page at the root, when a panel handler is given
//   - WebSocket hub pushing the snapshot whenever it changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Optional operator auth: commands need a bearer token issued for the
//     configured PIN; reads stay open
//
// # Graceful Degradation
//
// History, audit, MQTT and bus counters are optional. Without a repository
// the matching endpoints return 503; everything else keeps working.
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	POST /api/v1/auth/token     {"pin": "4921"}
//	GET  /api/v1/game
//	POST /api/v1/game/{confirm|start|pause|resume|reset|strike}
//	PUT  /api/v1/game/strikes   {"strikes": 2}
//	PUT  /api/v1/game/time      {"remaining_ms": 90000}
//	GET  /api/v1/modules
//	GET  /api/v1/modules/{addr}
//	POST /api/v1/modules/{addr}/solve
//	GET  /api/v1/edgework
//	GET  /api/v1/bus
//	GET  /api/v1/history?outcome=&limit=&offset=
//	GET  /api/v1/history/{id}
//	GET  /api/v1/audit?command=&source=&target=&limit=&offset=
//	GET  /api/v1/ws
//	GET  /*                     operator console
package api
