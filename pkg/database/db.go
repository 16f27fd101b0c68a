package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the query surface the repositories build on. Repositories compose
// their statements with go-sqlbuilder and run them through this interface,
// which keeps them testable against a fake. Unsafe exposes the underlying
// pool for the migration driver, which needs *sql.DB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	PingContext(ctx context.Context) error
	Close() error
	Unsafe() *sqlx.DB
}

type database struct {
	*sqlx.DB
	logger ectologger.Logger
}

// NewDatabaseInstance wraps an open sqlx pool in the repository-facing surface
func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &database{
		DB:     db,
		logger: logger,
	}
}
