// Package database provides the gateway's SQLite store.
//
// It holds two tables, created by the embedded migrations:
//
//	devices       device_id → ip_address, port (the command dispatch directory)
//	command_logs  one row per dispatched device command
//
// Connections are opened with WAL mode and a busy timeout, and the pool is
// limited to a single connection to match SQLite's single writer.
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
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and live in the top-level migrations package.
package database
