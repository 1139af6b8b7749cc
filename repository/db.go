package repository

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"

	accounts "github.com/goliatone/go-accounts"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options describes the database connection
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Open connects to the database and returns a bun handle with the dialect
// matching the driver. In-memory SQLite is pinned to a single connection
// so every query sees the same database.
func Open(opts Options) (*bun.DB, error) {
	driver := NormalizeDriver(opts.Driver)
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return nil, goerrors.New("database dsn is required", goerrors.CategoryBadInput).
			WithTextCode("DATABASE_DSN_REQUIRED")
	}

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch driver {
	case DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		if isMemoryDSN(dsn) {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to configure sqlite database")
		}
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
			WithTextCode("DATABASE_DRIVER_UNSUPPORTED").
			WithMetadata(map[string]any{"driver": opts.Driver})
	}

	if opts.MaxOpenConns > 0 && !(driver == DriverSQLite && isMemoryDSN(dsn)) {
		sqldb.SetMaxOpenConns(opts.MaxOpenConns)
	}

	return db, nil
}

// NormalizeDriver maps driver aliases to DriverSQLite or DriverPostgres
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3", "sqliteshim":
		return DriverSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	}
	return strings.ToLower(strings.TrimSpace(driver))
}

// DialectName returns the migrations directory for the database dialect
func DialectName(db *bun.DB) string {
	if db.Dialect().Name().String() == "pg" {
		return DriverPostgres
	}
	return DriverSQLite
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func newMigrator(db *bun.DB) (*migrate.Migrator, error) {
	fsys, err := accounts.GetDialectMigrationsFS(DialectName(db))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open migrations")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	return migrate.NewMigrator(db, migrations), nil
}

// Migrate applies pending migrations and returns the applied group.
// The group is empty when the schema was already up to date.
func Migrate(ctx context.Context, db *bun.DB, logger accounts.Logger) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return nil, err
	}

	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrations")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}

	if logger != nil {
		if group.IsZero() {
			logger.Info("no new migrations to run", "dialect", DialectName(db))
		} else {
			logger.Info("migrations applied", "dialect", DialectName(db), "group", group.String())
		}
	}

	return group, nil
}

// Rollback reverts the last applied migration group
func Rollback(ctx context.Context, db *bun.DB, logger accounts.Logger) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return nil, err
	}

	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrations")
	}

	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to roll back migrations")
	}

	if logger != nil {
		if group.IsZero() {
			logger.Info("no migrations to roll back", "dialect", DialectName(db))
		} else {
			logger.Info("migrations rolled back", "dialect", DialectName(db), "group", group.String())
		}
	}

	return group, nil
}
