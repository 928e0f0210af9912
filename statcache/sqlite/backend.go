package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/statcache"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteBackend stores stat entries in a SQLite table.
type SQLiteBackend struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteBackend creates a new SQLite stat cache backend.
// The dbPath can be ":memory:" for an in-memory database or a file path.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	backend := &SQLiteBackend{
		db: db,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return backend, nil
}

// initSchema creates the database schema.
func (sb *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS s3fs_stat (
		uri TEXT PRIMARY KEY,
		stat BLOB NOT NULL,
		expires INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_s3fs_stat_expires ON s3fs_stat(expires);
	`

	_, err := sb.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this backend
func (*SQLiteBackend) Name() string {
	return "sqlite"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (sb *SQLiteBackend) Open(ctx context.Context) error {
	return sb.db.PingContext(ctx)
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (sb *SQLiteBackend) Close(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.db.Close()
}

func (sb *SQLiteBackend) Load(ctx context.Context, uri string) (*statcache.Entry, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	entry := &statcache.Entry{URI: uri}
	var expires int64

	err := sb.db.QueryRowContext(ctx, "SELECT stat, expires FROM s3fs_stat WHERE uri = ?", uri).
		Scan(&entry.Stat, &expires)
	if err == sql.ErrNoRows {
		return nil, data.ErrNotExist
	}
	if err != nil {
		return nil, err
	}

	entry.Expires = time.Unix(expires, 0)
	return entry, nil
}

func (sb *SQLiteBackend) Save(ctx context.Context, entry *statcache.Entry) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	_, err := sb.db.ExecContext(ctx, `
		INSERT INTO s3fs_stat (uri, stat, expires) VALUES (?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET stat = excluded.stat, expires = excluded.expires
	`, entry.URI, entry.Stat, entry.Expires.Unix())
	return err
}

func (sb *SQLiteBackend) Remove(ctx context.Context, uris ...string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, uri := range uris {
		if _, err := tx.ExecContext(ctx, "DELETE FROM s3fs_stat WHERE uri = ?", uri); err != nil {
			return err
		}
	}

	return tx.Commit()
}
