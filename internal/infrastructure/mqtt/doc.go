// Package mqtt is the broker link.
//
// Inbound, the host mirrors every entity to a statestream:
//
//	<prefix>/<domain>/<object_id>/state
//	<prefix>/<domain>/<object_id>/attributes
//
// and the ingest package subscribes to those topics to drive the live
// entity.StateMachine. Outbound, each config entry's committed selection is
// published retained on couchcontrol/selection/<entry_id>, and the service
// announces itself on couchcontrol/system/status with a matching will.
//
// Subscriptions are remembered and replayed after a reconnect. Handler
// panics are recovered and logged.
package mqtt
