// Package influxdb records selected entity states as time series.
//
// The integration attaches a telemetry sink to the subscription bridge;
// each forwarded change with a numeric or on/off style state becomes a
// couch_control_state point. Writes go through the client library's
// batching write API and never block the bridge.
//
// Connect returns ErrDisabled when influxdb.enabled is false, which callers
// treat as "no sink".
package influxdb
