// Package objectstore stores selection records in an S3-compatible bucket
// using minio-go.
//
// A Client satisfies selection.Backend: each key becomes one JSON object
// named "<prefix><key>.json". It is the alternative to the SQLite storage
// table when storage.backend is "minio".
package objectstore
