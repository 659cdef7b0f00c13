// Package migrations embeds the Postgres schema for the document store, the
// audit trail and the event consumer ledger.
package migrations

import "embed"

// FS holds the golang-migrate SQL files.
//
//go:embed *.sql
var FS embed.FS
