// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - The Couch Control endpoints under /api/couch_control (entities, info, clear)
//   - A WebSocket command channel for filtered state subscriptions
//   - Live state, entity registry, service and config flow endpoints
//   - JWT bearer authentication with role-based permissions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Dashboards and couch tablets read and change a config entry's selection
// through REST, and receive changes of the selected entities over the
// WebSocket. All mutations go through the selection Mutator of the target
// entry; subscriptions go through the integration's bridge, which filters
// the state machine's change bus by the union of every entry's selection.
//
// # Security
//
// Every route except /api/health requires a bearer token. The WebSocket
// upgrades without credentials and then runs an auth phase: the server
// sends auth_required, the client answers with an auth message carrying
// access_token, and the server replies auth_ok or auth_invalid (and closes).
//
// # Not Configured
//
// Routes exist whether or not a config entry is set up. Without one, the
// Couch Control endpoints answer 400 {"error": "Couch Control not configured"}.
package api
