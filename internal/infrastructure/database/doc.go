// Package database provides SQLite storage for regsync.
//
// It holds the preset library and the audit trail. The connection runs with
// foreign keys enabled (preset values cascade with their preset) and,
// for file databases, WAL mode so the API can read while a preset is saved.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs registered
// through MigrationsFS, normally by importing the top-level migrations
// package for its side effect.
package database
