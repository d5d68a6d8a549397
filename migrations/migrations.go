// Package migrations embeds the schema so the server, the migrate tool and tests share one copy.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
