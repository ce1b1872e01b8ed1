package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"time"
)

// Migrations holds the *.up.sql / *.down.sql files at its root. The
// migrations package sets it from an embed.FS. A nil FS migrates nothing.
var Migrations fs.FS

// ErrNoDownSQL is returned by Rollback for a migration without a .down.sql file.
var ErrNoDownSQL = errors.New("database: migration has no down SQL")

// migrationFile matches YYYYMMDD_HHMMSS_description.(up|down).sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

type migration struct {
	version string
	name    string
	up      string
	down    string
}

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	applied_at TEXT NOT NULL
)`

// Migrate applies every migration newer than the recorded schema version,
// oldest first, each in its own transaction. A failing migration is rolled
// back and stops the run; earlier ones stay applied.
//
// Returns:
//   - int: Number of migrations applied by this call
//   - error: The first failure, naming the migration
func (db *DB) Migrate(ctx context.Context) (int, error) {
	all, err := loadMigrations(Migrations)
	if err != nil {
		return 0, err
	}
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range all {
		if done[m.version] {
			continue
		}
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.version, m.name, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("database: migration %s_%s: %w", m.version, m.name, err)
		}
		applied++
	}
	return applied, nil
}

// Rollback reverts the newest applied migration using its .down.sql.
//
// Returns:
//   - string: Version rolled back, or "" when nothing is applied
//   - error: ErrNoDownSQL, or the failure of the down SQL
func (db *DB) Rollback(ctx context.Context) (string, error) {
	version, err := db.SchemaVersion(ctx)
	if err != nil || version == "" {
		return "", err
	}
	all, err := loadMigrations(Migrations)
	if err != nil {
		return "", err
	}
	i := slices.IndexFunc(all, func(m migration) bool { return m.version == version })
	if i < 0 {
		return "", fmt.Errorf("database: applied migration %s is not embedded in this build", version)
	}
	m := all[i]
	if m.down == "" {
		return "", fmt.Errorf("%w: %s_%s", ErrNoDownSQL, m.version, m.name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.version)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("database: rollback %s_%s: %w", m.version, m.name, err)
	}
	return m.version, nil
}

// SchemaVersion returns the newest applied migration version, or "" on a
// fresh database.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return "", fmt.Errorf("database: schema_migrations: %w", err)
	}
	var version sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return "", fmt.Errorf("database: reading schema version: %w", err)
	}
	return version.String, nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("database: schema_migrations: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("database: listing migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("database: scanning migration: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

// loadMigrations pairs the up and down files in fsys by version, oldest
// first. Files not named like a migration are ignored. Two descriptions
// for one version, or a down file without an up file, are errors.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("database: reading migrations: %w", err)
	}

	byVersion := make(map[string]*migration)
	for _, e := range entries {
		parts := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || parts == nil {
			continue
		}
		version, name, direction := parts[1], parts[2], parts[3]

		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("database: reading %s: %w", e.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version, name: name}
			byVersion[version] = m
		}
		if m.name != name {
			return nil, fmt.Errorf("database: version %s used by %q and %q", version, m.name, name)
		}
		if direction == "up" {
			m.up = string(body)
		} else {
			m.down = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" {
			return nil, fmt.Errorf("database: migration %s_%s has no up SQL", m.version, m.name)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		}
		return 0
	})
	return out, nil
}
