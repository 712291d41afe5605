// Package migrations embeds the goose SQL migrations for the CLI session cache.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
