// Package database provides the gateway's SQLite store.
//
// It manages the connection (WAL mode, busy timeout, a single writer) and
// applies schema migrations read from an fs.FS, normally the embedded
// files of the top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: each file pair is
// YYYYMMDD_HHMMSS_description.up.sql and .down.sql.
package database
