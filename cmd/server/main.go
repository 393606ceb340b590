package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/r-paxst/bskygfobsky/internal/config"
	"github.com/r-paxst/bskygfobsky/internal/domain"
	"github.com/r-paxst/bskygfobsky/internal/httpserver"
	"github.com/r-paxst/bskygfobsky/internal/sqlstore"
	"github.com/r-paxst/bskygfobsky/internal/supabase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(os.Args[1:])
	if config.IsHelp(err) {
		fmt.Println(err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer closeStore()

	feedService := domain.NewFeedService(domain.FeedConfig{
		DID:    cfg.FeedDID,
		RKey:   cfg.FeedID,
		Name:   cfg.FeedName,
		Avatar: cfg.FeedAvatar,
	}, store, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	gin.SetMode(gin.ReleaseMode)
	server := httpserver.NewServer(cfg, feedService, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("feed generator started", "port", cfg.Port, "feed", feedService.FeedURI(), "datastore", cfg.Datastore)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

// openStore builds the configured PostStore. The returned close func is
// always safe to call.
func openStore(cfg *config.Config, logger *slog.Logger) (domain.PostStore, func(), error) {
	switch cfg.Datastore {
	case config.DatastorePostgres:
		repo, err := sqlstore.OpenPostgres(cfg.DatabaseURL, cfg.PostsTable)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to database", "datastore", cfg.Datastore)
		return repo, func() { repo.Close() }, nil

	case config.DatastoreSQLite:
		repo, err := sqlstore.OpenSQLite(cfg.SQLitePath, cfg.PostsTable)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite database", "path", cfg.SQLitePath)
		return repo, func() { repo.Close() }, nil

	default:
		if !cfg.SupabaseConfigured() {
			logger.Warn("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set; getFeedSkeleton will fail")
		}
		return supabase.NewStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.PostsTable), func() {}, nil
	}
}
