package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"notion_syncer/internal/config"
	"notion_syncer/internal/publisher"
	"notion_syncer/internal/relocate"
	"notion_syncer/internal/service"
	"notion_syncer/internal/source/notion"
	"notion_syncer/internal/storage/d1"
	"notion_syncer/internal/storage/postgres"
	"notion_syncer/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	mode := flag.String("mode", "", "database target override: local or remote")
	idsFlag := flag.String("ids", "", "comma-separated page ids to sync instead of the whole database")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = setupLogger(cfg.LogLevel)

	switch *mode {
	case "":
	case "local":
		cfg.Database.Driver = "sqlite"
	case "remote":
		cfg.Database.D1.Remote = true
	default:
		logger.Error("unknown -mode, want local or remote", "mode", *mode)
		os.Exit(1)
	}

	if err := cfg.ValidateSync(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	posts, syncState, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up database", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	var relocator service.ImageRelocator
	if cfg.Images.Bucket != "" {
		uploader := relocate.NewWranglerUploader(cfg.Images.WranglerBin, cfg.Images.Bucket, logger)
		relocator = relocate.New(relocate.Config{
			PublicBaseURL:  cfg.Images.PublicBaseURL,
			KeyPrefix:      cfg.Images.KeyPrefix,
			MaxAttempts:    cfg.Images.MaxAttempts,
			InitialBackoff: cfg.Images.InitialBackoff,
		}, uploader, logger)
	}

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	source := notion.New(notion.Config{
		BaseURL:        cfg.Notion.BaseURL,
		Token:          cfg.Notion.Token,
		DatabaseID:     cfg.Notion.DatabaseID,
		Version:        cfg.Notion.Version,
		PageSize:       cfg.Notion.PageSize,
		Timeout:        cfg.Notion.Timeout,
		MaxAttempts:    cfg.Notion.Retry.MaxAttempts,
		InitialBackoff: cfg.Notion.Retry.InitialBackoff,
		MaxBackoff:     cfg.Notion.Retry.MaxBackoff,
	}, logger)

	syncService := service.NewSyncService(source, posts, syncState, relocator, pub, logger)

	stats, err := syncService.Sync(ctx, parseIDs(*idsFlag))
	if err != nil {
		logger.Error("sync failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("inserted=%d, skipped=%d\n", stats.Inserted+stats.Updated, stats.Skipped)
}

// buildStores wires the post and sync-state stores for the configured
// database driver.
func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.PostStore, service.SyncStateStore, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLite.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("using sqlite database", "path", cfg.Database.SQLite.Path)
		return sqlite.NewPostStore(db), sqlite.NewSyncStateStore(db), func() { db.Close() }, nil

	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.Postgres.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("connected to postgres", "host", cfg.Database.Postgres.Host)
		return postgres.NewPostStore(db), postgres.NewSyncStateStore(db), func() { db.Close() }, nil

	case "d1":
		client := d1.NewClient(d1.Config{
			DatabaseName: cfg.Database.D1.DatabaseName,
			WranglerBin:  cfg.Database.D1.WranglerBin,
			Remote:       cfg.Database.D1.Remote,
			MaxRetries:   cfg.Database.D1.MaxRetries,
		}, logger)
		logger.Info("using d1 database",
			"database", cfg.Database.D1.DatabaseName,
			"remote", cfg.Database.D1.Remote,
		)
		return d1.NewPostStore(client), d1.NewSyncStateStore(client), func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func parseIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
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
