// Package csql opens the local postgres store and keeps its schema up to date.
package csql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/relabs-tech/agrigate/core/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// DBTX is what repositories need from a database. It is satisfied by *sql.DB,
// *sql.Tx and *DB.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// OpenWithSchema opens the postgres database. dataSourceName is a key/value connection
// string without password, the password is appended when not empty. A non-public schema
// is created if it does not exist yet and becomes the search path of every connection.
func OpenWithSchema(ctx context.Context, dataSourceName, password, schema string) (*DB, error) {
	if password != "" {
		dataSourceName += " password=" + password
	}
	if schema == "" {
		schema = "public"
	}
	if !validSchema.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	logger.Default().Infoln("connecting to postgres database, schema:", schema)

	db, err := open(ctx, dataSourceName)
	if err != nil {
		return nil, err
	}
	if schema == "public" {
		return &DB{DB: db, Schema: schema}, nil
	}

	if _, err = db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+schema+`;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema %s: %w", schema, err)
	}
	db.Close()

	db, err = open(ctx, dataSourceName+" search_path="+schema)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db, Schema: schema}, nil
}

func open(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot reach database: %w", err)
	}
	return db, nil
}

// Migrate applies all embedded migrations that have not been applied yet
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("cannot select migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("cannot migrate schema %s: %w", db.Schema, err)
	}
	return nil
}

// ClearSchema drops every table of a non-public schema by recreating it
func (db *DB) ClearSchema(ctx context.Context) error {
	if db.Schema == "public" || db.Schema == "" {
		return fmt.Errorf("refuse to drop public schema")
	}
	_, err := db.ExecContext(ctx, `DROP SCHEMA `+db.Schema+` CASCADE;
CREATE SCHEMA IF NOT EXISTS `+db.Schema+`;`)
	return err
}

// IsUniqueViolation reports whether err is a postgres unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
