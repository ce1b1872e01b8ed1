// Package database opens the SQLite snapshot database and migrates its
// schema.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with an optional matching .down.sql, embedded by the migrations package.
// Applied versions are recorded in schema_migrations. New columns must be
// NULLABLE or carry a DEFAULT.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	n, err := db.Migrate(ctx)
//
// The database file is restricted to 0600.
package database
