package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"harmonie/backend/migrations"
)

// Usage: harmonie-migrate [up | down | version | force <version>]
func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "harmonie-migrate"))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("env file load failed", slog.Any("err", err))
	}

	databaseURL := strings.TrimSpace(os.Getenv("HARMONIE_DATABASE_URL"))
	if databaseURL == "" {
		databaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if databaseURL == "" {
		log.Error("HARMONIE_DATABASE_URL or DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		fatal(log, "open db", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		fatal(log, "ping db", err)
	}

	m, err := migrations.New(ctx, db, "")
	if err != nil {
		fatal(log, "create migrator", err)
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal(log, "migrate up", err)
		}
	case "down":
		if err := m.Steps(-1); err != nil {
			fatal(log, "migrate down", err)
		}
	case "force":
		if len(os.Args) < 3 {
			log.Error("force needs a version")
			os.Exit(2)
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fatal(log, "invalid version", err)
		}
		if err := m.Force(version); err != nil {
			fatal(log, "force version", err)
		}
	case "version":
	default:
		log.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		fatal(log, "read version", err)
	}
	log.Info("migrations complete", slog.String("command", cmd), slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.Any("err", err))
	os.Exit(1)
}
