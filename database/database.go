// Package database opens the bun connection and applies the embedded
// schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/babisque/ecommerce-auth"
)

//go:embed migrations
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string
	DSN    string
	// Debug logs every query through the configured logger
	Debug bool
}

// Open connects to the configured database and checks it is reachable
func Open(ctx context.Context, cfg Config, logger auth.Logger) (*bun.DB, error) {
	var db *bun.DB

	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, openError(err, cfg)
		}
		// sqlite serializes writers, a single connection avoids SQLITE_BUSY
		// and keeps in-memory databases alive between queries
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, openError(err, cfg)
		}
	case DriverPostgres, "pgx":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, openError(err, cfg)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", cfg.Driver), goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, openError(err, cfg)
	}

	if cfg.Debug && logger != nil {
		db.AddQueryHook(&QueryLogger{Logger: logger})
	}

	return db, nil
}

func openError(err error, cfg Config) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open database").
		WithTextCode(auth.TextCodeStoreOperationFailed).
		WithMetadata(map[string]any{"driver": cfg.Driver})
}

// Migrate applies every pending migration for the dialect of db
func Migrate(ctx context.Context, db *bun.DB, logger auth.Logger) error {
	provider, err := newProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	logResults(logger, results)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations").
			WithTextCode(auth.TextCodeStoreOperationFailed)
	}
	return nil
}

// Rollback reverts the most recent migration
func Rollback(ctx context.Context, db *bun.DB, logger auth.Logger) error {
	provider, err := newProvider(db)
	if err != nil {
		return err
	}

	result, err := provider.Down(ctx)
	if result != nil {
		logResults(logger, []*goose.MigrationResult{result})
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to roll back migration").
			WithTextCode(auth.TextCodeStoreOperationFailed)
	}
	return nil
}

// Version returns the current schema version
func Version(ctx context.Context, db *bun.DB) (int64, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newProvider(db *bun.DB) (*goose.Provider, error) {
	var (
		gooseDialect goose.Dialect
		dir          string
	)

	switch db.Dialect().Name() {
	case dialect.SQLite:
		gooseDialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	case dialect.PG:
		gooseDialect, dir = goose.DialectPostgres, "migrations/postgres"
	default:
		return nil, goerrors.New(fmt.Sprintf("no migrations for dialect %s", db.Dialect().Name()), goerrors.CategoryInternal)
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load migrations")
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create migration provider")
	}
	return provider, nil
}

func logResults(logger auth.Logger, results []*goose.MigrationResult) {
	if logger == nil {
		return
	}
	for _, r := range results {
		if r.Error != nil {
			logger.Error("migration %s failed: %v", r.Source.Path, r.Error)
			continue
		}
		logger.Info("migration %s %s (%s)", r.Direction, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
}

// QueryLogger is a bun query hook writing each statement to a Logger
type QueryLogger struct {
	Logger auth.Logger
}

var _ bun.QueryHook = (*QueryLogger)(nil)

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime).Round(time.Microsecond)
	if event.Err != nil && event.Err != sql.ErrNoRows {
		h.Logger.Warn("query failed after %s: %s: %v", elapsed, event.Query, event.Err)
		return
	}
	h.Logger.Debug("query %s: %s", elapsed, event.Query)
}
