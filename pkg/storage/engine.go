package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/cuemby/infractl/pkg/errs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Engine is the embedded relational store. A single mutex serializes all
// access to the single underlying connection, mirroring SQLite's own
// single-writer model at the Go level.
type Engine struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, applies
// pending goose migrations, and tunes it for a single-process embedded
// workload: WAL journaling, NORMAL synchronous durability, and a negative
// (kilobyte-denominated) cache size.
func Open(ctx context.Context, path string) (*Engine, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=cache_size(-8000)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "open database")
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Storage, err, "ping database")
	}

	goose.SetBaseFS(migrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Storage, err, "set migration dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Storage, err, "run migrations")
	}

	return &Engine{db: db}, nil
}

// Close closes the underlying connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// exec serializes a write against the single connection.
func (e *Engine) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.ExecContext(ctx, query, args...)
}

// query serializes a read against the single connection. SQLite allows
// concurrent readers at the filesystem level, but the Go-level mutex keeps
// the single *sql.DB connection from racing with a concurrent writer.
func (e *Engine) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.QueryContext(ctx, query, args...)
}

func (e *Engine) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.QueryRowContext(ctx, query, args...)
}
