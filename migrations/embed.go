// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Pass it to DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
