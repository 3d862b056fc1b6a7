package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "no telemetry sink", not as a failure.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	ErrConnectionFailed = errors.New("influxdb: server unreachable")
	ErrNotConnected     = errors.New("influxdb: client closed")
)
