// Package item embeds the goose migrations for the inventory schema.
package item

import "embed"

//go:embed *.sql
var FS embed.FS
