// Package integration sets up and tears down couch_control config entries.
//
// Each config entry becomes an Instance owning one selection: a Cache, the
// Store it is persisted to, the background Writer, and the Mutator that is
// the only write path. The Manager keeps the running instances, registers
// the couch_control services while at least one instance runs, and exposes
// the union of every instance's selection to the subscription bridge.
//
// Startup for one entry:
//
//	load record -> import legacy data if none -> populate cache ->
//	register services -> attach update listener
//
// Teardown runs the same steps in reverse and flushes the pending write.
package integration
