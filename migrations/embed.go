// Package migrations embeds the gateway's SQL migrations into the binary.
package migrations

import (
	"embed"

	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
