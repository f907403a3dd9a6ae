package db

import "embed"

// MigrationFS embeds the SQL migrations applied by cmd/migrate and, when
// AUTO_MIGRATE is set, by cmd/sessiond at startup.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
