package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	liveTable    = "s3fs_cache"
	stagingTable = "s3fs_cache_staging"
	oldTable     = "s3fs_cache_old"
)

const columns = "uri, filesize, timestamp, is_directory, mode, owner, expires"

// SQLiteStore persists the metadata cache in a single SQLite table.
// URIs are compared as raw bytes so prefix scans are exact.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed metadata cache.
// The dbPath can be ":memory:" for an in-memory database or a file path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases shared and
	// serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{
		db: db,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func tableSchema(table string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		uri TEXT PRIMARY KEY,
		filesize INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL DEFAULT 0,
		is_directory INTEGER NOT NULL DEFAULT 0,
		mode INTEGER NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		expires INTEGER
	);`, table)
}

// initSchema creates the database schema.
func (ss *SQLiteStore) initSchema() error {
	schema := tableSchema(liveTable) + `
	CREATE INDEX IF NOT EXISTS idx_s3fs_cache_directory ON s3fs_cache(is_directory);
	`

	_, err := ss.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this store
func (*SQLiteStore) Name() string {
	return "sqlite"
}

// Open is part of the lifecycle behaviour and gets called when opening this store.
func (ss *SQLiteStore) Open(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.db.PingContext(ctx)
}

// Close is part of the lifecycle behaviour and gets called when closing this store.
func (ss *SQLiteStore) Close(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.db.Close()
}

func (ss *SQLiteStore) Get(ctx context.Context, uri string) (*data.Record, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	row := ss.db.QueryRowContext(ctx, "SELECT "+columns+" FROM "+liveTable+" WHERE uri = ?", uri)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, data.ErrNotExist
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (ss *SQLiteStore) Put(ctx context.Context, records ...*data.Record) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.putInto(ctx, liveTable, records)
}

func (ss *SQLiteStore) putInto(ctx context.Context, table string, records []*data.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+table+` (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			filesize = excluded.filesize,
			timestamp = excluded.timestamp,
			is_directory = excluded.is_directory,
			mode = excluded.mode,
			owner = excluded.owner,
			expires = excluded.expires
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.URI, int64(r.Size), r.LastModified.Unix(),
			r.IsDirectory, int64(r.Mode), r.Owner, nullTime(r.Expires)); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.URI, err)
		}
	}

	return tx.Commit()
}

func (ss *SQLiteStore) Delete(ctx context.Context, uris ...string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if len(uris) == 0 {
		return nil
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, uri := range uris {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+liveTable+" WHERE uri = ?", strings.TrimSuffix(uri, "/")); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (ss *SQLiteStore) Query(ctx context.Context, query *cache.Query) ([]*data.Record, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	where, args := buildWhere(query)
	stmt := "SELECT " + columns + " FROM " + liveTable + " WHERE " + where + " ORDER BY uri"
	if query.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", query.Limit)
	}

	rows, err := ss.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*data.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}

	return result, rows.Err()
}

// buildWhere translates query into a byte-exact range condition.
func buildWhere(query *cache.Query) (string, []any) {
	conditions := []string{"uri > ?"}
	args := []any{query.Prefix}

	if bound, ok := cache.UpperBound(query.Prefix); ok && query.Prefix != "" {
		conditions = append(conditions, "uri < ?")
		args = append(args, bound)
	}
	if query.Delimiter != "" {
		conditions = append(conditions, "instr(substr(uri, ?), ?) = 0")
		args = append(args, utf8.RuneCountInString(query.Prefix)+1, query.Delimiter)
	}
	if query.DirectoriesOnly {
		conditions = append(conditions, "is_directory = 1")
	}

	return strings.Join(conditions, " AND "), args
}

// BeginStaging recreates the staging table.
func (ss *SQLiteStore) BeginStaging(ctx context.Context) (cache.Staging, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if _, err := ss.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+stagingTable); err != nil {
		return nil, fmt.Errorf("failed to drop staging table: %w", err)
	}
	if _, err := ss.db.ExecContext(ctx, tableSchema(stagingTable)); err != nil {
		return nil, fmt.Errorf("failed to create staging table: %w", err)
	}

	return &sqliteStaging{store: ss}, nil
}

type sqliteStaging struct {
	store *SQLiteStore
	done  bool
}

func (st *sqliteStaging) Put(ctx context.Context, records ...*data.Record) error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	if st.done {
		return data.ErrClosed
	}

	return st.store.putInto(ctx, stagingTable, records)
}

// Swap renames the staging table into place inside one transaction.
func (st *sqliteStaging) Swap(ctx context.Context) error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	if st.done {
		return data.ErrClosed
	}

	tx, err := st.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		"DROP TABLE IF EXISTS " + oldTable,
		"DROP INDEX IF EXISTS idx_s3fs_cache_directory",
		"ALTER TABLE " + liveTable + " RENAME TO " + oldTable,
		"ALTER TABLE " + stagingTable + " RENAME TO " + liveTable,
		"DROP TABLE " + oldTable,
		"CREATE INDEX IF NOT EXISTS idx_s3fs_cache_directory ON s3fs_cache(is_directory)",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to swap cache tables: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	st.done = true
	return nil
}

// Merge replaces the live records under prefix inside one transaction.
func (st *sqliteStaging) Merge(ctx context.Context, prefix string) error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	if st.done {
		return data.ErrClosed
	}

	tx, err := st.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	deleteStmt := "DELETE FROM " + liveTable + " WHERE uri >= ?"
	args := []any{prefix}
	if bound, ok := cache.UpperBound(prefix); ok {
		deleteStmt += " AND uri < ?"
		args = append(args, bound)
	}

	if _, err := tx.ExecContext(ctx, deleteStmt, args...); err != nil {
		return fmt.Errorf("failed to clear prefix %s: %w", prefix, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO "+liveTable+" ("+columns+") SELECT "+columns+" FROM "+stagingTable); err != nil {
		return fmt.Errorf("failed to copy staging records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+stagingTable); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	st.done = true
	return nil
}

func (st *sqliteStaging) Discard(ctx context.Context) error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	st.done = true
	_, err := st.store.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+stagingTable)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*data.Record, error) {
	var record data.Record
	var size, timestamp, mode int64
	var expires sql.NullInt64

	if err := row.Scan(&record.URI, &size, &timestamp, &record.IsDirectory, &mode, &record.Owner, &expires); err != nil {
		return nil, err
	}

	record.Size = uint64(size)
	record.LastModified = time.Unix(timestamp, 0)
	record.Mode = data.FileMode(mode)
	if expires.Valid {
		record.Expires = time.Unix(expires.Int64, 0)
	}

	return &record, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
