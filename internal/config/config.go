package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Notion   NotionConfig   `yaml:"notion"`
	Images   ImagesConfig   `yaml:"images"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // postgres, sqlite or d1
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	D1       D1Config       `yaml:"d1"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type D1Config struct {
	DatabaseName string `yaml:"database_name"`
	WranglerBin  string `yaml:"wrangler_bin"`
	Remote       bool   `yaml:"remote"`
	MaxRetries   int    `yaml:"max_retries"`
}

type NotionConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	DatabaseID string        `yaml:"database_id"`
	Version    string        `yaml:"version"`
	PageSize   int           `yaml:"page_size"`
	Timeout    time.Duration `yaml:"timeout"`
	Retry      RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// ImagesConfig controls image relocation to object storage. Relocation
// is disabled when bucket is empty.
type ImagesConfig struct {
	Bucket         string        `yaml:"bucket"`
	PublicBaseURL  string        `yaml:"public_base_url"`
	KeyPrefix      string        `yaml:"key_prefix"`
	WranglerBin    string        `yaml:"wrangler_bin"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// RabbitMQConfig configures the optional post-synced event stream.
// Publishing is disabled when url is empty.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "posts.db"
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.Database.D1.WranglerBin == "" {
		c.Database.D1.WranglerBin = "wrangler"
	}
	if c.Database.D1.MaxRetries == 0 {
		c.Database.D1.MaxRetries = 3
	}
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = "https://api.notion.com"
	}
	if c.Notion.Version == "" {
		c.Notion.Version = "2022-06-28"
	}
	if c.Notion.PageSize == 0 {
		c.Notion.PageSize = 100
	}
	if c.Notion.Timeout == 0 {
		c.Notion.Timeout = 30 * time.Second
	}
	if c.Notion.Retry.MaxAttempts == 0 {
		c.Notion.Retry.MaxAttempts = 3
	}
	if c.Notion.Retry.InitialBackoff == 0 {
		c.Notion.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Notion.Retry.MaxBackoff == 0 {
		c.Notion.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Images.KeyPrefix == "" {
		c.Images.KeyPrefix = "images"
	}
	if c.Images.WranglerBin == "" {
		c.Images.WranglerBin = "wrangler"
	}
	if c.Images.MaxAttempts == 0 {
		c.Images.MaxAttempts = 3
	}
	if c.Images.InitialBackoff == 0 {
		c.Images.InitialBackoff = 1 * time.Second
	}
	if c.RabbitMQ.URL != "" {
		if c.RabbitMQ.Exchange == "" {
			c.RabbitMQ.Exchange = "notion_syncer"
		}
		if c.RabbitMQ.RoutingKey == "" {
			c.RabbitMQ.RoutingKey = "posts"
		}
		if c.RabbitMQ.QueueName == "" {
			c.RabbitMQ.QueueName = "synced_posts"
		}
	}
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ValidateSync checks everything the syncer needs before it touches
// the network.
func (c *Config) ValidateSync() error {
	if c.Notion.Token == "" {
		return fmt.Errorf("notion.token is required")
	}
	if c.Notion.DatabaseID == "" {
		return fmt.Errorf("notion.database_id is required")
	}
	if c.Images.Bucket != "" && c.Images.PublicBaseURL == "" {
		return fmt.Errorf("images.public_base_url is required when images.bucket is set")
	}
	return c.validateDatabase()
}

// ValidateServe checks everything the read API needs.
func (c *Config) ValidateServe() error {
	return c.validateDatabase()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return fmt.Errorf("database.postgres.host and database.postgres.dbname are required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "d1":
		if c.Database.D1.DatabaseName == "" {
			return fmt.Errorf("database.d1.database_name is required")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}
