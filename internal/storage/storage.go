// Package storage is the relational store behind the converter: the upstream
// game_info and build_order tables written by ingest, and the per-matchup
// dataset tables written by the pipeline. SQLite (modernc.org/sqlite) is the
// default; Postgres is reached through pgx's database/sql driver.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

//go:embed schema.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a sql.DB for the replay store.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Open opens the store and applies the upstream schema. For sqlite, dsn is a
// file path (parent directories are created) or ":memory:".
func Open(driverName, dsn string) (*DB, error) {
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}

	var conn *sql.DB
	switch d.name {
	case DriverSQLite:
		conn, err = openSQLite(dsn)
	default:
		conn, err = sql.Open("pgx", dsn)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}

	db := &DB{conn: conn, dialect: d}
	if err := db.withRetry(context.Background(), func() error {
		_, err := conn.Exec(d.schema)
		return err
	}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return db, nil
}

// OpenSQLite is Open with the sqlite driver.
func OpenSQLite(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

// New wraps an already open connection without touching the schema.
func New(conn *sql.DB, driverName string) (*DB, error) {
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, dialect: d}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Every sqlite connection to ":memory:" is its own database, and WAL
	// still allows a single writer only.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Driver is the name of the backing driver.
func (db *DB) Driver() string { return db.dialect.name }

// SetMaxOpenConns caps the pool; ignored for sqlite.
func (db *DB) SetMaxOpenConns(n int) {
	if db.dialect.name == DriverSQLite || n <= 0 {
		return
	}
	db.conn.SetMaxOpenConns(n)
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// withRetry runs op, and runs it a second time when the first attempt lost
// its connection. A second transient failure is returned to the caller.
func (db *DB) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isTransient(err) || ctx.Err() != nil {
		return err
	}
	if err = op(); err != nil && isTransient(err) {
		return errors.Wrap(errors.Transient(err), "retry failed")
	}
	return err
}

func isTransient(err error) bool {
	switch {
	case errors.IsTransient(err),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err)
}

// dialect isolates the SQL differences between the supported drivers.
type dialect struct {
	name       string
	schema     string
	floatType  string
	listTables string
	columns    string
}

func dialectFor(name string) (dialect, error) {
	switch strings.ToLower(name) {
	case DriverSQLite, "sqlite3":
		return dialect{
			name:       DriverSQLite,
			schema:     schemaSQLite,
			floatType:  "REAL",
			listTables: `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
			columns:    `SELECT name FROM pragma_table_info(?) ORDER BY cid`,
		}, nil
	case DriverPostgres, "pgx", "postgresql":
		return dialect{
			name:       DriverPostgres,
			schema:     schemaPostgres,
			floatType:  "DOUBLE PRECISION",
			listTables: `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`,
			columns:    `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position`,
		}, nil
	}
	return dialect{}, errors.Config("unsupported database driver %q, want sqlite or postgres", name)
}

// rebind rewrites "?" placeholders to "$n" for postgres.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
