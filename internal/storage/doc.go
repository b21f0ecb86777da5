// Package storage provides SQLite-based persistence for markup project files.
//
// A project file (".mmp") is a self-contained SQLite database holding:
//   - Project metadata (name, description, dataset root, scan suffixes)
//   - Iteration and markup settings
//   - Entries keyed by content fingerprint, in appearance order
//   - Labels per entry, in label-list order
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations (semver); the highest one is the file format version
//   - project: one metadata row
//   - settings: one row of persisted policy tags, cursor and minimum span duration
//   - entries: fingerprint, position, relative path, corruption flag
//   - labels: fingerprint, position, start/end in milliseconds, description
//
// Timestamps are stored as unix milliseconds.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("session.mmp")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.PutProject(ctx, project)
//	_ = tx.PutSettings(ctx, settings)
//	_ = tx.ReplaceEntries(ctx, entries)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// Reading a file that may not be a project uses OpenExisting, which never
// creates a schema and reports ErrNotProject for foreign or newer files.
//
// # Build Tags
//
// Pure Go build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
package storage
