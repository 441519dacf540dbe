// Package migrations holds the clinic-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
