package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"notion_syncer/internal/config"
	"notion_syncer/internal/server"
	"notion_syncer/internal/storage/d1"
	"notion_syncer/internal/storage/postgres"
	"notion_syncer/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = setupLogger(cfg.LogLevel)

	if err := cfg.ValidateServe(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	posts, closeStore, err := buildReader(cfg, logger)
	if err != nil {
		logger.Error("failed to set up database", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Posts:  posts,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to build http handler", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("serving posts api", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func buildReader(cfg *config.Config, logger *slog.Logger) (server.PostReader, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite database", "path", cfg.Database.SQLite.Path)
		return sqlite.NewPostStore(db), func() { db.Close() }, nil

	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.Postgres.DSN())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to postgres", "host", cfg.Database.Postgres.Host)
		return postgres.NewPostStore(db), func() { db.Close() }, nil

	case "d1":
		client := d1.NewClient(d1.Config{
			DatabaseName: cfg.Database.D1.DatabaseName,
			WranglerBin:  cfg.Database.D1.WranglerBin,
			Remote:       cfg.Database.D1.Remote,
			MaxRetries:   cfg.Database.D1.MaxRetries,
		}, logger)
		logger.Info("using d1 database", "database", cfg.Database.D1.DatabaseName)
		return d1.NewPostStore(client), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
