package accounts

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

//go:embed data/templates/email
var templatesFS embed.FS

// GetMigrationsFS returns the migration files for this package.
// Each dialect has its own directory: sqlite and postgres.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// GetDialectMigrationsFS returns the migrations of a single dialect
func GetDialectMigrationsFS(dialect string) (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations/"+dialect)
}

// GetEmailTemplatesFS returns the email templates rooted at their directory
func GetEmailTemplatesFS() (fs.FS, error) {
	return fs.Sub(templatesFS, "data/templates/email")
}
