// Package migrations embeds the goose SQL migrations for the sqldb store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
