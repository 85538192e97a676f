// Package database opens the SQLite file that stores game history and
// applies versioned schema migrations to it.
//
// The connection pool is pinned to one connection (SQLite has a single
// writer); WAL mode lets readers proceed while the recorder writes.
// MemoryPath gives a throwaway database for tests and the simulator.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
