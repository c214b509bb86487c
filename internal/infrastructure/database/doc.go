// Package database manages the SQLite connection and schema migrations.
//
// SoundWeave Core persists adopted entities (players and playback groups) in
// a single SQLite file. Migrations are embedded into the binary via the
// migrations package and applied on startup, each in its own transaction.
package database
