// Package migrations embeds the SQLite schema so the daemon can migrate
// without the .sql files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
