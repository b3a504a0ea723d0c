// Package database provides SQLite connectivity for the switch bridge.
//
// This package manages:
//   - The database connection with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Connection lifecycle and health checks
//
// The database file is created with mode 0600. All queries should use
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and each .up.sql file should have a matching .down.sql. Migrate only
// applies up files; down files are run by hand to roll back.
package database
