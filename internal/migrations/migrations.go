// Package migrations embeds the SQL migration files applied to Cardigan's
// embedded SQLite database at startup (tarsy's pkg/database go:embed
// pattern in client.go, pointed at sqlite migrations instead of postgres).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
