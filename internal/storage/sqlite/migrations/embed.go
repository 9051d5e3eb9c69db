// Package migrations embeds the SQLite schema for reputation storage.
// Each store opens its own database file and applies one subdirectory.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the event, knowledge, and
// social stores.
//
//go:embed events/*.sql knowledge/*.sql social/*.sql
var FS embed.FS
