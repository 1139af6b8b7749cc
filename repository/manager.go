package repository

import (
	"context"

	"github.com/uptrace/bun"

	accounts "github.com/goliatone/go-accounts"
)

// Connection bundles the database handle with the repositories built on it
type Connection struct {
	DB   *bun.DB
	Repo accounts.RepositoryManager
}

// Close releases the database handle
func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Connect opens the database, applies migrations when migrate is set and
// returns a validated repository manager.
func Connect(ctx context.Context, opts Options, migrate bool, logger accounts.Logger, repoOpts ...accounts.AccountsOption) (*Connection, error) {
	db, err := Open(opts)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if migrate {
		if _, err := Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	repo := accounts.NewRepositoryManager(db, repoOpts...)
	if err := repo.Validate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Connection{DB: db, Repo: repo}, nil
}
