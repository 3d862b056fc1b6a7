// Package logging builds the log/slog logger shared by every Couch Control
// component.
//
// Records carry "service" and "version" attributes. Components add their
// own with With, for example logger.With("component", "sink_bridge").
//
// Configured from the logging section of config.yaml:
//
//	logging:
//	  level: info     # debug | info | warn | error
//	  format: json    # json | text
//	  output: stdout  # stdout | stderr | discard
//
// Access tokens and the JWT secret must never be logged; log the token
// subject instead.
package logging
