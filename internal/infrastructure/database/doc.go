// Package database provides SQLite connectivity for beamcore.
//
// It stores the state that must outlive a process: saved sample positions
// for the stage registry and the index of emitted asset documents.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Forward and rollback schema migrations loaded from MigrationsFS
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
