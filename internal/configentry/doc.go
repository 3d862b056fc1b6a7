// Package configentry stores integration config entries and runs the
// multi-step configuration flows that create and edit them.
//
// A config entry is one configured instance of an integration. For
// couch_control each entry owns one selection; the selection itself lives
// in the selection store, and the entry only records what the last flow
// submitted (Data for the creating flow, Options for later edits).
//
// Flows present the entity catalog, optionally grouped by domain or area,
// with non-selectable header rows that are stripped from any submission.
package configentry
