// Package d1 stores posts in a Cloudflare D1 database by shelling out
// to the wrangler CLI. There is no network API client here on purpose:
// wrangler already holds the account credentials and is the same path
// the deploy tooling uses.
package d1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a wrangler invocation and returns its combined
// output. Split out so tests can fake the CLI.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type execRunner struct {
	bin string
}

func (r *execRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, r.bin, args...).CombinedOutput()
}

// Config holds D1 client settings.
type Config struct {
	DatabaseName string
	WranglerBin  string
	Remote       bool
	MaxRetries   int
}

// Client runs SQL against one D1 database. Statements that hit a
// locked database are retried with exponential backoff, since D1's
// local simulator serializes writers behind SQLITE_BUSY.
type Client struct {
	runner     Runner
	database   string
	remote     bool
	maxRetries int
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	return newClient(cfg, &execRunner{bin: cfg.WranglerBin}, logger)
}

func newClient(cfg Config, runner Runner, logger *slog.Logger) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &Client{
		runner:     runner,
		database:   cfg.DatabaseName,
		remote:     cfg.Remote,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

type execResult struct {
	Results []map[string]any `json:"results"`
	Success bool             `json:"success"`
}

// Exec runs a statement and discards any result rows.
func (c *Client) Exec(ctx context.Context, statement string) error {
	_, err := c.run(ctx, statement)
	return err
}

// Query runs a statement and returns its result rows as generic maps.
func (c *Client) Query(ctx context.Context, statement string) ([]map[string]any, error) {
	return c.run(ctx, statement)
}

func (c *Client) run(ctx context.Context, statement string) ([]map[string]any, error) {
	args := []string{"d1", "execute", c.database, "--command", statement, "--json"}
	if c.remote {
		args = append(args, "--remote")
	} else {
		args = append(args, "--local")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := 100 * time.Millisecond << (attempt - 1)
			c.logger.Warn("database locked, retrying",
				"attempt", attempt,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := c.runner.Run(ctx, args...)
		if err != nil {
			lastErr = fmt.Errorf("wrangler d1 execute: %w: %s", err, strings.TrimSpace(string(out)))
			if isBusy(string(out)) {
				continue
			}
			return nil, lastErr
		}

		return parseResults(out)
	}

	return nil, fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func isBusy(output string) bool {
	return strings.Contains(output, "SQLITE_BUSY") || strings.Contains(output, "database is locked")
}

// parseResults decodes wrangler's --json output, an array with one
// entry per executed statement.
func parseResults(out []byte) ([]map[string]any, error) {
	// wrangler sometimes prefixes the JSON with log lines
	idx := strings.IndexAny(string(out), "[{")
	if idx < 0 {
		return nil, fmt.Errorf("no JSON in wrangler output: %s", strings.TrimSpace(string(out)))
	}

	var batches []execResult
	if err := json.Unmarshal(out[idx:], &batches); err != nil {
		return nil, fmt.Errorf("decode wrangler output: %w", err)
	}

	var rows []map[string]any
	for _, batch := range batches {
		if !batch.Success {
			return nil, fmt.Errorf("statement reported failure")
		}
		rows = append(rows, batch.Results...)
	}
	return rows, nil
}
