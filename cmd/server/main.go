package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vedant-vijay/community-platform/internal/config"
	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/httpserver"
	"github.com/vedant-vijay/community-platform/internal/identity"
	"github.com/vedant-vijay/community-platform/internal/live"
	"github.com/vedant-vijay/community-platform/internal/postgres"
	"github.com/vedant-vijay/community-platform/internal/seed"
	"github.com/vedant-vijay/community-platform/internal/session"
	"github.com/vedant-vijay/community-platform/internal/sqlite"
)

const maxCachedAuthors = 10_000

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type documentStore interface {
	domain.DocumentStore
	io.Closer
}

type sessionStore interface {
	session.Store
	io.Closer
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer docs.Close()
	logger.Info("connected to document store", "driver", cfg.StoreDriver)

	var authors domain.AuthorCache
	if cfg.AuthorCacheTTL > 0 {
		cache, err := domain.NewAuthorCache(maxCachedAuthors, cfg.AuthorCacheTTL)
		if err != nil {
			return fmt.Errorf("create author cache: %w", err)
		}
		defer cache.Close()
		authors = cache
	}
	feedService := domain.NewFeedService(docs, authors, logger)

	sessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	idp := identity.NewClient(cfg.IdentityURL, cfg.IdentityTokenURL, cfg.IdentityAPIKey)
	manager := session.NewManager(sessions, idp, feedService, logger, session.WithTTL(cfg.SessionTTL))

	relay := live.NewRelay(feedService, manager, logger)
	go relay.LogStats(ctx, 30*time.Second)

	var seeder httpserver.Seeder
	if cfg.EnableSeed {
		seeder = func(ctx context.Context) error {
			return seed.Run(ctx, feedService, logger)
		}
	}

	server, err := httpserver.NewServer(cfg, feedService, manager, relay, seeder, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("server started", "port", cfg.Port, "seed", cfg.EnableSeed)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		logger.Error("http server exited with error", "error", err)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
	relay.Close()

	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (documentStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		store, err := postgres.NewStore(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config) (sessionStore, error) {
	if cfg.RedisURL == "" {
		return session.NewMemoryStore(), nil
	}
	store, err := session.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return store, nil
}
