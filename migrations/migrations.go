// Package migrations embeds the schema applied by utils.Migrate.
package migrations

import "embed"

// FS holds the numbered *.sql files. Files are applied in name order.
//
//go:embed *.sql
var FS embed.FS
