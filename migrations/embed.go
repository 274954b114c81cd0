// Package migrations holds the PostgreSQL schema for the scene and bug
// gateway. Files are applied in name order by internal/storage/migrate.
package migrations

import "embed"

// FS contains embedded PostgreSQL migrations.
//
//go:embed *.sql
var FS embed.FS
