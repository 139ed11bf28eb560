// Package migrations holds the goose migrations for the entries table.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
