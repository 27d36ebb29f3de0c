// Package migrations embeds the simulator's forward-only schema migrations,
// applied by sql-migrate through db.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
