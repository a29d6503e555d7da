package postgres

import "embed"

// Migrations holds the schema, applied in order by db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
