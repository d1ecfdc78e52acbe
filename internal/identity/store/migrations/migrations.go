// Package migrations embeds the identity directory schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
