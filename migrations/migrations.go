// Package migrations embeds the goose SQL migrations applied by cmd/migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
