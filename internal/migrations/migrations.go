// Package migrations embeds the goose SQL migrations for the durable tier.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
