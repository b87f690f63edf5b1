package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu sqlite3 dialect
	_ "github.com/lib/pq"                               // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"                     // SQLite driver
)

// Supported driver names, matching the registered database/sql drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// defaultMaxOpenConns applies to postgres when no limit is configured.
	defaultMaxOpenConns = 10
)

// DB wraps a sql.DB with the SQL dialect it speaks.
type DB struct {
	*sql.DB
	driver  string
	path    string
	dialect goqu.DialectWrapper
}

// Config contains database configuration options.
type Config struct {
	// Driver selects the storage engine: "sqlite3" (default) or "postgres".
	Driver string

	// Path is the SQLite database file. The directory is created if missing.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string

	// WALMode enables SQLite Write-Ahead Logging.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a SQLite lock (seconds).
	BusyTimeout int

	// MaxOpenConns caps the PostgreSQL pool. SQLite always uses one writer.
	MaxOpenConns int
}

// Open creates a new database connection for the configured driver.
//
// For sqlite3 it performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the file with foreign keys, busy timeout and optional WAL mode
//  3. Limits the pool to a single writer
//  4. Verifies the connection with a ping and restricts the file to 0600
//
// For postgres it opens a pool capped at MaxOpenConns (10 by default) and
// verifies it with a ping.
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: ErrUnsupportedDriver for an unknown driver, or the wrapped
//     open/ping failure
func Open(cfg Config) (*DB, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return openSQLite(cfg)
	case DriverPostgres:
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// openSQLite opens a file-backed SQLite database.
func openSQLite(cfg Config) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open(DriverSQLite, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db, err := verify(sqlDB, DriverSQLite, cfg.Path)
	if err != nil {
		return nil, err
	}

	// The file may not exist until the first write; ignore failures here.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // first run creates file later

	return db, nil
}

// openPostgres opens a pooled PostgreSQL connection.
func openPostgres(cfg Config) (*DB, error) {
	sqlDB, err := sql.Open(DriverPostgres, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return verify(sqlDB, DriverPostgres, "")
}

// verify pings the freshly opened pool and wraps it.
func verify(sqlDB *sql.DB, driver, path string) (*DB, error) {
	db := Wrap(sqlDB, driver)
	db.path = path

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	return db, nil
}

// Wrap adapts an already opened *sql.DB, typically a sqlmock connection in tests.
func Wrap(sqlDB *sql.DB, driver string) *DB {
	return &DB{
		DB:      sqlDB,
		driver:  driver,
		dialect: goqu.Dialect(driver),
	}
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Dialect returns the goqu dialect matching the driver, for building
// placeholder-correct SQL.
func (db *DB) Dialect() goqu.DialectWrapper {
	return db.dialect
}

// Path returns the filesystem path to the SQLite file, or "" for postgres.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database is accessible and functioning.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}
