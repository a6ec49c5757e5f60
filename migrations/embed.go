// Package migrations holds the PostgreSQL schema for the import job store.
package migrations

import "embed"

// FS contains every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
