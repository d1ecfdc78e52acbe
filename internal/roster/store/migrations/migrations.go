// Package migrations embeds the roster schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
