// Package database opens the SQLite file that backs the entity and area
// registry, the config entries and, with storage.backend "sqlite", the
// persisted selection records.
//
// The schema ships in the migrations package and is applied with
// DB.Migrate at startup. Files are named
// YYYYMMDD_HHMMSS_description.up.sql, each with an optional .down.sql.
package database
