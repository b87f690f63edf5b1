// Package database provides relational store connectivity for the device server.
//
// Two drivers are supported:
//   - sqlite3 (github.com/mattn/go-sqlite3) for single-site installs, WAL mode, one writer
//   - postgres (github.com/lib/pq) for shared deployments
//
// Each DB carries the goqu dialect of its driver so callers can build
// placeholder-correct SQL without caring which engine is behind it.
//
// Schema bootstrap:
//
// Embedded *.up.sql files are applied on startup from a per-driver
// subdirectory of MigrationsFS. Every file runs once, in its own
// transaction, and is recorded in schema_migrations. Files are never rolled back.
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: "sqlite3", Path: "./data/aigrow.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
