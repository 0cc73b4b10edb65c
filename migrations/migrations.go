// Package migrations embeds the Postgres schema for the tracking outbox and
// the checkout ledger.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
