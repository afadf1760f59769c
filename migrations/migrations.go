// Package migrations embeds the schema for the user directory.
package migrations

import "embed"

// FS holds every *.up.sql file, applied in name order at startup.
//
//go:embed *.up.sql
var FS embed.FS
