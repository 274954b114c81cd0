package migrations

import "embed"

// FS contains embedded SQLite migrations for scene and bug storage.
//
//go:embed *.sql
var FS embed.FS
