// Package migrations embeds the SQL schema for the tables this service
// owns. The chamber's tasks, cases, and clients tables belong to the main
// application and are only queried, never created here.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
