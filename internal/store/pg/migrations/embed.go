package migrations

import "embed"

// FS embeds the goose migration files so the binary carries its own
// schema and never depends on a migrations directory being present on
// disk at deploy time.
//
//go:embed *.sql
var FS embed.FS
