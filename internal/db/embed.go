package db

import "embed"

// EmbedMigrations holds the SQL migrations compiled into the binary, so the
// server and CLI can migrate any database file they are pointed at.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
