// Package migrations embeds the schema files into the binary.
//
// Each supported driver has its own subdirectory; the database package
// picks the one matching the configured driver.
package migrations

import (
	"embed"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/database"
)

//go:embed sqlite3/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
