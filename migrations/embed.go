// Package migrations embeds the regsync SQL migrations into the binary and
// registers them with the database package. Import it for its side effect.
package migrations

import (
	"embed"

	"github.com/nerrad567/regsync/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
