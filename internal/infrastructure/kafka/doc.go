// Package kafka publishes filtered state changes to a Kafka topic.
//
// Messages are JSON-encoded bridge events keyed by entity ID, so every
// change of one entity lands on the same partition in order. Writes are
// asynchronous; delivery errors are reported to the logger.
package kafka
