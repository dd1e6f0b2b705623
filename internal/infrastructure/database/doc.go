// Package database provides SQLite connection management for the Argus
// ingestion gateway.
//
// The gateway keeps two tables in a single SQLite file: the device registry
// (system of record for identity and credentials) and the telemetry readings
// table (durable store for accepted readings, with a unique constraint that
// enforces write idempotency).
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Busy timeout to handle lock contention gracefully
//   - Embedded SQL migrations applied at startup
//   - Health checks for readiness probes
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
