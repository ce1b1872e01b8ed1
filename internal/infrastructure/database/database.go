package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirMode  = 0o750
	fileMode = 0o600

	idleConnTimeout = 30 * time.Minute
)

var (
	// ErrEmptyPath is returned by Open when database.path is blank.
	ErrEmptyPath = errors.New("database: empty path")

	// ErrNotMigrated is reported by HealthCheck before the first migration.
	ErrNotMigrated = errors.New("database: schema not migrated")
)

// DB is the snapshot database. The embedded *sql.DB is handed to the
// snapshot store and the Prometheus DB stats collector.
type DB struct {
	*sql.DB
}

// Config maps the database section of config.yaml.
type Config struct {
	// Path of the SQLite file. Missing parent directories are created.
	Path string

	// WALMode lets API reads run alongside snapshot writes.
	WALMode bool

	// BusyTimeout is how long a writer waits on a locked database, in seconds.
	BusyTimeout int
}

// Open opens (or creates) the SQLite file and checks it answers within ctx.
// The pool is limited to one connection because SQLite has a single writer
// and the current-row swap relies on that serialisation.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Open database; call Migrate before use
//   - error: ErrEmptyPath, or the directory, open or ping failure
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("database: creating directory for %s: %w", cfg.Path, err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("database: opening %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(idleConnTimeout)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("database: ping %s: %w", cfg.Path, err)
	}
	if err := os.Chmod(cfg.Path, fileMode); err != nil && !os.IsNotExist(err) {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("database: restricting %s: %w", cfg.Path, err)
	}
	return &DB{DB: sqlDB}, nil
}

// dsn builds the go-sqlite3 connection string. Writes take the lock up
// front (_txlock=immediate) so a busy database fails at BEGIN rather
// than halfway through a snapshot swap.
func dsn(cfg Config) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close closes the pool. It is safe on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	return nil
}

// HealthCheck reports the database healthy once it answers and carries a
// migrated schema.
func (db *DB) HealthCheck(ctx context.Context) error {
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	if version == "" {
		return ErrNotMigrated
	}
	return nil
}

// inTx runs fn in a transaction and commits if fn returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // fn's error wins
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
