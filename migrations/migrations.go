// Package migrations embeds the postgres schema for golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var FS embed.FS

// New builds a migrator on a dedicated connection taken from db. Closing the
// migrator releases that connection and leaves db open.
func New(ctx context.Context, db *sql.DB, schema string) (*migrate.Migrate, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	dbDriver, err := postgres.WithConnection(ctx, conn, &postgres.Config{SchemaName: schema})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	srcDriver, err := iofs.New(FS, ".")
	if err != nil {
		_ = dbDriver.Close()
		return nil, err
	}
	return migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(ctx context.Context, db *sql.DB, schema string) error {
	m, err := New(ctx, db, schema)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
