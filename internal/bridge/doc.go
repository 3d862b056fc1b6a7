// Package bridge forwards live state changes of selected entities to
// subscribers.
//
// Each Subscribe call runs the per-subscriber state machine:
//
//	Init      snapshot of every selected entity with a live state
//	Active    every change whose entity passes the live filter is forwarded
//	Terminal  Subscription.Dispose; nothing is delivered afterwards
//
// The filter is re-evaluated for every event, so selection changes made
// while a subscription is active take effect immediately. With native
// scoping the bus registration is limited to the ids selected at subscribe
// time; newly selected ids are then missed until the subscriber
// resubscribes, but de-selected ids are still dropped.
//
// The bridge does not buffer, coalesce or apply backpressure. Subscribers
// that must not block the publisher (network sinks) queue on their side.
package bridge
