package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

// testMigrations is a two-step schema resembling the snapshot table. The
// second step is one-way.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_frames.up.sql": &fstest.MapFile{Data: []byte(
			`CREATE TABLE test_frames (seq INTEGER PRIMARY KEY AUTOINCREMENT, device_message_id TEXT NOT NULL);`,
		)},
		"20260301_090000_frames.down.sql": &fstest.MapFile{Data: []byte(
			`DROP TABLE test_frames;`,
		)},
		"20260302_090000_frames_status.up.sql": &fstest.MapFile{Data: []byte(
			`ALTER TABLE test_frames ADD COLUMN status TEXT NOT NULL DEFAULT 'current';`,
		)},
		"README.md": &fstest.MapFile{Data: []byte("ignored")},
	}
}

// useMigrations swaps the package-level FS for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	orig := Migrations
	t.Cleanup(func() { Migrations = orig })
	if fsys == nil {
		Migrations = nil
		return
	}
	Migrations = fsys
}

func schemaVersion(t *testing.T, db *DB) string {
	t.Helper()
	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	return v
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if v := schemaVersion(t, db); v != "" {
		t.Errorf("SchemaVersion() on fresh database = %q", v)
	}

	n, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}
	if v := schemaVersion(t, db); v != "20260302_090000" {
		t.Errorf("SchemaVersion() = %q, want 20260302_090000", v)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO test_frames (device_message_id) VALUES (?)`, "D1"); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
	var status string
	if err := db.QueryRowContext(ctx, `SELECT status FROM test_frames`).Scan(&status); err != nil || status != "current" {
		t.Errorf("status = %q, err = %v; second migration not applied", status, err)
	}

	var name string
	if err := db.QueryRowContext(ctx,
		`SELECT name FROM schema_migrations WHERE version = '20260301_090000'`,
	).Scan(&name); err != nil || name != "frames" {
		t.Errorf("recorded name = %q, err = %v", name, err)
	}

	n, err = db.Migrate(ctx)
	if err != nil || n != 0 {
		t.Errorf("second Migrate() = (%d, %v), want (0, nil)", n, err)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	useMigrations(t, nil)
	db := openTestDB(t)

	if n, err := db.Migrate(context.Background()); err != nil || n != 0 {
		t.Errorf("Migrate() = (%d, %v), want (0, nil)", n, err)
	}
	if v, err := db.Rollback(context.Background()); err != nil || v != "" {
		t.Errorf("Rollback() with nothing applied = (%q, %v)", v, err)
	}
}

func TestMigrate_FailureStopsRun(t *testing.T) {
	fsys := testMigrations()
	fsys["20260303_090000_broken.up.sql"] = &fstest.MapFile{Data: []byte("NOT VALID SQL")}
	fsys["20260304_090000_after.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE after_broken (x INTEGER);")}
	useMigrations(t, fsys)
	db := openTestDB(t)

	n, err := db.Migrate(context.Background())
	if err == nil {
		t.Fatal("Migrate() succeeded with a broken migration")
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d before failing, want 2", n)
	}
	if v := schemaVersion(t, db); v != "20260302_090000" {
		t.Errorf("SchemaVersion() = %q, want last good version", v)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'after_broken'`).Scan(&count) //nolint:errcheck // count stays 0 on error
	if count != 0 {
		t.Error("migration after the broken one was applied")
	}
}

func TestRollback(t *testing.T) {
	fsys := testMigrations()
	delete(fsys, "20260302_090000_frames_status.up.sql")
	useMigrations(t, fsys)
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	v, err := db.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if v != "20260301_090000" {
		t.Errorf("Rollback() = %q, want 20260301_090000", v)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'test_frames'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("test_frames survived rollback")
	}
	if v := schemaVersion(t, db); v != "" {
		t.Errorf("SchemaVersion() after rollback = %q", v)
	}
}

func TestRollback_OneWayMigration(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.Rollback(ctx); !errors.Is(err, ErrNoDownSQL) {
		t.Errorf("Rollback() = %v, want ErrNoDownSQL", err)
	}
	if v := schemaVersion(t, db); v != "20260302_090000" {
		t.Errorf("SchemaVersion() = %q, refused rollback changed it", v)
	}
}

func TestLoadMigrations(t *testing.T) {
	got, err := loadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d migrations, want 2", len(got))
	}
	if got[0].version != "20260301_090000" || got[0].name != "frames" || got[0].down == "" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].name != "frames_status" || got[1].down != "" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestLoadMigrations_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "down without up",
			fsys: fstest.MapFS{
				"20260301_090000_orphan.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE x;")},
			},
		},
		{
			name: "two names for one version",
			fsys: fstest.MapFS{
				"20260301_090000_a.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
				"20260301_090000_b.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadMigrations(tt.fsys); err == nil {
				t.Error("loadMigrations() accepted an invalid set")
			}
		})
	}
}

func TestMigrationFilePattern(t *testing.T) {
	tests := []struct {
		filename string
		match    bool
	}{
		{"20260301_090000_device_snapshots.up.sql", true},
		{"20260301_090000_device_snapshots.down.sql", true},
		{"20260301_090000_device_snapshots.sql", false},
		{"2026031_090000_short.up.sql", false},
		{"invalid.up.sql", false},
		{"readme.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := migrationFile.MatchString(tt.filename); got != tt.match {
				t.Errorf("match = %v, want %v", got, tt.match)
			}
		})
	}
}
