// Package migrations carries the snapshot schema. Importing it for side
// effects hands the embedded SQL to the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/database"
)

//go:embed *.sql
var sqlFiles embed.FS

func init() {
	database.Migrations = sqlFiles
}
