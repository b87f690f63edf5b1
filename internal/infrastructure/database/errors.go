package database

import "errors"

var (
	// ErrUnsupportedDriver is returned by Open for an unknown driver name.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")

	// ErrNoMigrations is returned when no schema exists for the active driver.
	ErrNoMigrations = errors.New("database: no migrations for driver")
)
