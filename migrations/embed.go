// Package migrations embeds the SQL schema into the binary.
//
// The files are passed to database.DB.Migrate at startup, so the service
// never needs the SQL present on the filesystem.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
