package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "snapshots.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesNestedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "dtu", "snapshots.db")

	db, err := Open(context.Background(), Config{Path: path, WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if mode := info.Mode().Perm(); mode != fileMode {
		t.Errorf("file mode = %o, want %o", mode, fileMode)
	}
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpen_WALMode(t *testing.T) {
	db := openTestDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("Open(empty path) = %v, want ErrEmptyPath", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "x.db")}); err == nil {
		t.Error("Open(cancelled ctx) succeeded")
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[string]string
	}{
		{
			name: "wal",
			cfg:  Config{Path: "/data/dtu.db", WALMode: true, BusyTimeout: 5},
			want: map[string]string{
				"_busy_timeout": "5000",
				"_foreign_keys": "on",
				"_txlock":       "immediate",
				"_journal_mode": "WAL",
				"_synchronous":  "NORMAL",
			},
		},
		{
			name: "rollback journal",
			cfg:  Config{Path: "/data/dtu.db", BusyTimeout: 0},
			want: map[string]string{
				"_busy_timeout": "0",
				"_txlock":       "immediate",
				"_journal_mode": "",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dsn(tt.cfg)
			path, rawQuery, ok := strings.Cut(got, "?")
			if !ok || path != "file:/data/dtu.db" {
				t.Fatalf("dsn() = %q", got)
			}
			q, err := url.ParseQuery(rawQuery)
			if err != nil {
				t.Fatalf("ParseQuery(%q): %v", rawQuery, err)
			}
			for k, v := range tt.want {
				if q.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, q.Get(k), v)
				}
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.HealthCheck(ctx); !errors.Is(err, ErrNotMigrated) {
		t.Errorf("HealthCheck() before Migrate = %v, want ErrNotMigrated", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	db.Close()
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on closed database succeeded")
	}
}

func TestClose_ZeroDB(t *testing.T) {
	if err := (&DB{}).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := db.Exec(`CREATE TABLE t (v INTEGER)`); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO t VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("inTx() = %v, want fn error", err)
	}

	if err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t VALUES (2)`)
		return err
	}); err != nil {
		t.Fatalf("inTx() = %v", err)
	}

	var sum int
	if err := db.QueryRow(`SELECT COALESCE(SUM(v), 0) FROM t`).Scan(&sum); err != nil {
		t.Fatal(err)
	}
	if sum != 2 {
		t.Errorf("sum = %d, want 2 (first transaction rolled back)", sum)
	}
}
