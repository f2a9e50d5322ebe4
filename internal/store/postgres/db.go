package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// ErrSchemaMissing means the migrations have not been applied to the
// database the store points at.
var ErrSchemaMissing = errors.New("postgres: schema missing")

// requiredTables are the tables the store reads and replaces.
var requiredTables = []string{"slot_templates", "bookings"}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (p PoolConfig) String() string {
	return fmt.Sprintf("max_open=%d max_idle=%d max_lifetime=%s max_idle_time=%s",
		p.MaxOpenConns, p.MaxIdleConns, p.ConnMaxLifetime, p.ConnMaxIdleTime)
}

// Open connects with the pgx driver and pings once. Errors carry the pool
// settings but never the URL, which holds the password.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open (%s): %w", pool, err)
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping (%s): %w", pool, err)
	}

	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

// CheckSchema reports ErrSchemaMissing, naming the absent tables, when the
// booking tables are not visible on the connection's search_path.
func CheckSchema(ctx context.Context, db *bun.DB) error {
	var missing []string
	for _, table := range requiredTables {
		var reg sql.NullString
		if err := db.NewRaw("SELECT to_regclass(?)::text", table).Scan(ctx, &reg); err != nil {
			return fmt.Errorf("postgres: check table %s: %w", table, err)
		}
		if !reg.Valid {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s (run harmonie-migrate up)", ErrSchemaMissing, strings.Join(missing, ", "))
	}
	return nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
