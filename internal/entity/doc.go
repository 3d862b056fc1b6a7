// Package entity holds the host-side view of entities that Couch Control
// filters: the registry of known entities and areas, and the live state
// machine that emits change events.
//
// The registry is a cache over a Repository (SQLite in production), seeded
// from a YAML file at startup. The state machine is in-memory only; it is
// fed by the MQTT statestream ingest and by the REST state endpoints, and
// publishes a ChangeEvent on its bus for every observable change.
//
// Entity IDs follow "<domain>.<object_id>" with lowercase letters, digits
// and underscores, for example "light.kitchen" or "sensor.outdoor_temp".
package entity
