package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrNotProject is returned when a file is not a readable project database
	ErrNotProject = types.ErrNotProject
)

// nowFunc is replaced in tests that need stable timestamps
var nowFunc = time.Now

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// A project file is a single self-contained document, so no WAL side files
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates or upgrades a project database at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// OpenExisting opens a project database that must already carry a schema.
// A missing file yields ErrNotFound. Anything that is not a project file, or
// one written by a newer major format version, yields ErrNotProject.
func OpenExisting(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	// Opening a missing path would create an empty database
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, dbPath, err)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotProject, dbPath, err)
	}

	fail := func(format string, args ...any) (*SQLiteStorage, error) {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %s", ErrNotProject, dbPath, fmt.Sprintf(format, args...))
	}

	exists, err := hasSchemaTable(ctx, db)
	if err != nil {
		return fail("%v", err)
	}
	if !exists {
		return fail("no schema_version table")
	}

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		return fail("%v", err)
	}
	if err := checkCompatible(version); err != nil {
		return fail("%v", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		return fail("%v", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Project operations

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier) (*Project, error) {
	query := `
		SELECT id, name, description, dataset_root, suffixes, format_version,
		       tree_digest, created_at, updated_at
		FROM project
		LIMIT 1
	`
	var project Project
	var suffixes string
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, query).Scan(
		&project.ID, &project.Name, &project.Description, &project.DatasetRoot,
		&suffixes, &project.FormatVersion, &project.TreeDigest, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project row", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if suffixes != "" {
		project.Suffixes = strings.Split(suffixes, ",")
	}
	project.CreatedAt = fromMillis(createdAt)
	project.UpdatedAt = fromMillis(updatedAt)
	return &project, nil
}

func (s *SQLiteStorage) GetProject(ctx context.Context) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier())
}

// putProjectWithQuerier stores project as the only project row
func (s *SQLiteStorage) putProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	if project.ID == "" {
		return fmt.Errorf("%w: project id is required", types.ErrInvalidArgument)
	}

	now := nowFunc()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	if project.FormatVersion == "" {
		project.FormatVersion = CurrentSchemaVersion
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM project WHERE id <> ?", project.ID); err != nil {
		return fmt.Errorf("failed to clear project row: %w", err)
	}

	query := `
		INSERT INTO project (id, name, description, dataset_root, suffixes,
		                     format_version, tree_digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			dataset_root = excluded.dataset_root,
			suffixes = excluded.suffixes,
			format_version = excluded.format_version,
			tree_digest = excluded.tree_digest,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		project.ID, project.Name, project.Description, project.DatasetRoot,
		strings.Join(project.Suffixes, ","), project.FormatVersion, project.TreeDigest,
		toMillis(project.CreatedAt), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to store project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) PutProject(ctx context.Context, project *Project) error {
	return s.putProjectWithQuerier(ctx, s.querier(), project)
}

// Settings operations

func (s *SQLiteStorage) getSettingsWithQuerier(ctx context.Context, q querier) (*Settings, error) {
	query := `
		SELECT filter, order_by, index_policy, last_idx, min_duration_ms
		FROM settings
		WHERE id = 1
	`
	var settings Settings
	err := q.QueryRowContext(ctx, query).Scan(
		&settings.Filter, &settings.Order, &settings.Index,
		&settings.LastIdx, &settings.MinDurationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: settings row", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *SQLiteStorage) GetSettings(ctx context.Context) (*Settings, error) {
	return s.getSettingsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) putSettingsWithQuerier(ctx context.Context, q querier, settings *Settings) error {
	query := `
		INSERT INTO settings (id, filter, order_by, index_policy, last_idx, min_duration_ms)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filter = excluded.filter,
			order_by = excluded.order_by,
			index_policy = excluded.index_policy,
			last_idx = excluded.last_idx,
			min_duration_ms = excluded.min_duration_ms
	`
	_, err := q.ExecContext(ctx, query,
		settings.Filter, settings.Order, settings.Index, settings.LastIdx, settings.MinDurationMs)
	if err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PutSettings(ctx context.Context, settings *Settings) error {
	return s.putSettingsWithQuerier(ctx, s.querier(), settings)
}

// Entry operations

// replaceEntriesWithQuerier rewrites every entry and label.
// Positions are taken from slice order.
func (s *SQLiteStorage) replaceEntriesWithQuerier(ctx context.Context, q querier, entries []Entry) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM labels"); err != nil {
		return fmt.Errorf("failed to clear labels: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		e.Position = i
		_, err := q.ExecContext(ctx,
			"INSERT INTO entries (fingerprint, position, relative_path, is_corrupted) VALUES (?, ?, ?, ?)",
			e.Fingerprint[:], i, e.RelativePath, e.IsCorrupted)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.Fingerprint, err)
		}

		for j, l := range e.Labels {
			_, err := q.ExecContext(ctx,
				"INSERT INTO labels (fingerprint, position, start_ms, end_ms, description) VALUES (?, ?, ?, ?, ?)",
				e.Fingerprint[:], j, l.StartMs, l.EndMs, l.Description)
			if err != nil {
				return fmt.Errorf("failed to insert label %d of %s: %w", j, e.Fingerprint, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStorage) ReplaceEntries(ctx context.Context, entries []Entry) error {
	return s.replaceEntriesWithQuerier(ctx, s.querier(), entries)
}

func scanFingerprint(raw []byte) (types.Fingerprint, error) {
	var fp types.Fingerprint
	if len(raw) != types.FingerprintSize {
		return fp, fmt.Errorf("invalid fingerprint length %d", len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

func (s *SQLiteStorage) listEntriesWithQuerier(ctx context.Context, q querier) ([]Entry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT fingerprint, position, relative_path, is_corrupted FROM entries ORDER BY position")
	if err != nil {
		return nil, err
	}

	var entries []Entry
	index := make(map[types.Fingerprint]int)
	for rows.Next() {
		var raw []byte
		var e Entry
		if err := rows.Scan(&raw, &e.Position, &e.RelativePath, &e.IsCorrupted); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if e.Fingerprint, err = scanFingerprint(raw); err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[e.Fingerprint] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx,
		"SELECT fingerprint, start_ms, end_ms, description FROM labels ORDER BY fingerprint, position")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw []byte
		var l Label
		if err := rows.Scan(&raw, &l.StartMs, &l.EndMs, &l.Description); err != nil {
			return nil, err
		}
		fp, err := scanFingerprint(raw)
		if err != nil {
			return nil, err
		}
		i, ok := index[fp]
		if !ok {
			return nil, fmt.Errorf("label references unknown entry %s", fp)
		}
		entries[i].Labels = append(entries[i].Labels, l)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) ListEntries(ctx context.Context) ([]Entry, error) {
	return s.listEntriesWithQuerier(ctx, s.querier())
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*ProjectStatus, error) {
	project, err := s.getProjectWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{Project: project}

	version, err := SchemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_corrupted), 0) FROM entries").Scan(&status.EntriesCount, &status.CorruptedCount)
	if err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT fingerprint) FROM labels").Scan(&status.LabelsCount, &status.LabeledCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.FileSizeKB = float64(pageCount*pageSize) / 1024
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction implementations route every statement through the open transaction

func (t *sqliteTx) GetProject(ctx context.Context) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) PutProject(ctx context.Context, project *Project) error {
	return t.storage.putProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetSettings(ctx context.Context) (*Settings, error) {
	return t.storage.getSettingsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) PutSettings(ctx context.Context, settings *Settings) error {
	return t.storage.putSettingsWithQuerier(ctx, t.querier(), settings)
}

func (t *sqliteTx) ReplaceEntries(ctx context.Context, entries []Entry) error {
	return t.storage.replaceEntriesWithQuerier(ctx, t.querier(), entries)
}

func (t *sqliteTx) ListEntries(ctx context.Context) ([]Entry, error) {
	return t.storage.listEntriesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*ProjectStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
