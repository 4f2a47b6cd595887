package migrations

import "embed"

// FS contains embedded SQLite migrations for the print-shop store.
//
//go:embed *.sql
var FS embed.FS
