package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the project file format version
	CurrentSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

-- Project metadata, exactly one row
CREATE TABLE IF NOT EXISTS project (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    dataset_root TEXT NOT NULL,
    suffixes TEXT NOT NULL DEFAULT '',
    format_version TEXT NOT NULL,
    tree_digest TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Iteration and markup settings, exactly one row
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    filter TEXT NOT NULL,
    order_by TEXT NOT NULL,
    index_policy TEXT NOT NULL,
    last_idx INTEGER NOT NULL DEFAULT -1,
    min_duration_ms REAL NOT NULL DEFAULT 0
);

-- Entries table
CREATE TABLE IF NOT EXISTS entries (
    fingerprint BLOB PRIMARY KEY,
    position INTEGER NOT NULL UNIQUE,
    relative_path TEXT NOT NULL,
    is_corrupted BOOLEAN NOT NULL DEFAULT 0
);

-- Labels table
CREATE TABLE IF NOT EXISTS labels (
    fingerprint BLOB NOT NULL,
    position INTEGER NOT NULL,
    start_ms REAL NOT NULL,
    end_ms REAL NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (fingerprint, position),
    FOREIGN KEY (fingerprint) REFERENCES entries(fingerprint) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS labels;
DROP TABLE IF EXISTS entries;
DROP TABLE IF EXISTS settings;
DROP TABLE IF EXISTS project;
DROP TABLE IF EXISTS schema_version;
`

// hasSchemaTable reports whether the schema_version table exists
func hasSchemaTable(ctx context.Context, db querier) (bool, error) {
	var tableName string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	return true, nil
}

// SchemaVersion returns the highest applied migration version, 0.0.0 if none
func SchemaVersion(ctx context.Context, db querier) (*semver.Version, error) {
	exists, err := hasSchemaTable(ctx, db)
	if err != nil {
		return nil, err
	}
	current := semver.MustParse("0.0.0")
	if !exists {
		return current, nil
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			migration.Version, toMillis(nowFunc()))
		if err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return errors.New("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		v, err := semver.NewVersion(AllMigrations[i].Version)
		if err == nil && v.Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	// The first migration drops schema_version itself
	exists, err := hasSchemaTable(ctx, db)
	if err != nil || !exists {
		return err
	}
	_, err = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}
	return nil
}

// checkCompatible rejects files written by a newer major format version
func checkCompatible(v *semver.Version) error {
	supported := semver.MustParse(CurrentSchemaVersion)
	if v.Major() > supported.Major() {
		return fmt.Errorf("format version %s is newer than supported %s", v, supported)
	}
	return nil
}
