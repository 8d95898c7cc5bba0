package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/vedant-vijay/community-platform/internal/config"
	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/postgres"
	"github.com/vedant-vijay/community-platform/internal/seed"
	"github.com/vedant-vijay/community-platform/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		driver      string
		sqlitePath  string
		databaseURL string
	)

	flag.StringVar(&driver, "driver", envOrDefault("STORE_DRIVER", config.DriverSQLite), "Document store driver (sqlite or postgres)")
	flag.StringVar(&sqlitePath, "sqlite-path", envOrDefault("SQLITE_PATH", "data/community.db"), "SQLite database file")
	flag.StringVar(&databaseURL, "database-url", envOrDefault("DATABASE_URL", ""), "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	var docs domain.DocumentStore
	switch driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		docs = store
	case config.DriverPostgres:
		if databaseURL == "" {
			return fmt.Errorf("--database-url is required for the postgres driver (or set DATABASE_URL)")
		}
		store, err := postgres.NewStore(databaseURL, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		docs = store
	default:
		return fmt.Errorf("unknown driver %q", driver)
	}

	fmt.Printf("Adding sample data to %s store...\n", driver)
	if err := seed.Run(ctx, domain.NewFeedService(docs, nil, logger), logger); err != nil {
		return err
	}
	fmt.Println("Sample data added")

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
