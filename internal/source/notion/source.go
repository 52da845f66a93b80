package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"notion_syncer/internal/domain"
)

const (
	SourceID   = "notion"
	SourceName = "Notion"
)

// Config holds Notion source configuration.
type Config struct {
	BaseURL        string
	Token          string
	DatabaseID     string
	Version        string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source reads pages out of one Notion database and renders their
// block content to markdown.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	databaseID     string
	version        string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Notion source.
func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		databaseID:     cfg.DatabaseID,
		version:        cfg.Version,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchPosts pages through the database query endpoint until the
// cursor sentinel, then fetches and renders each page's content. A
// query failure aborts the whole fetch; a content failure drops only
// that page, with a warning.
func (s *Source) FetchPosts(ctx context.Context) ([]domain.Post, error) {
	var pages []Page
	cursor := ""

	for {
		resp, err := s.queryPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("query database: %w", err)
		}

		pages = append(pages, resp.Results...)

		s.logger.Debug("fetched query page",
			"results", len(resp.Results),
			"total", len(pages),
			"has_more", resp.HasMore,
		)

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = *resp.NextCursor
	}

	posts := make([]domain.Post, 0, len(pages))
	for _, page := range pages {
		post, err := s.buildPost(ctx, page)
		if err != nil {
			s.logger.Warn("skipping page",
				"page_id", page.ID,
				"error", err,
			)
			continue
		}
		posts = append(posts, post)
	}

	return posts, nil
}

// FetchPostByID fetches a single page for explicit re-runs. Accepts
// ids with or without dashes.
func (s *Source) FetchPostByID(ctx context.Context, pageID string) (*domain.Post, error) {
	var page Page
	url := fmt.Sprintf("%s/v1/pages/%s", s.baseURL, dashedID(pageID))
	if err := s.doRequest(ctx, http.MethodGet, url, nil, &page); err != nil {
		return nil, fmt.Errorf("retrieve page %s: %w", pageID, err)
	}

	post, err := s.buildPost(ctx, page)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Source) buildPost(ctx context.Context, page Page) (domain.Post, error) {
	blocks, err := s.fetchBlocks(ctx, page.ID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("fetch content: %w", err)
	}

	post := ToPost(page, RenderMarkdown(blocks))
	if post.ID == "" {
		return domain.Post{}, fmt.Errorf("page has no usable identifier")
	}
	return post, nil
}

func (s *Source) queryPage(ctx context.Context, cursor string) (*QueryResponse, error) {
	url := fmt.Sprintf("%s/v1/databases/%s/query", s.baseURL, s.databaseID)
	req := queryRequest{PageSize: s.pageSize, StartCursor: cursor}

	var resp QueryResponse
	if err := s.doRequestWithRetry(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Source) fetchBlocks(ctx context.Context, blockID string) ([]Block, error) {
	var blocks []Block
	cursor := ""

	for {
		url := fmt.Sprintf("%s/v1/blocks/%s/children?page_size=100", s.baseURL, blockID)
		if cursor != "" {
			url += "&start_cursor=" + cursor
		}

		var resp blockChildrenResponse
		if err := s.doRequestWithRetry(ctx, http.MethodGet, url, nil, &resp); err != nil {
			return nil, err
		}

		blocks = append(blocks, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = *resp.NextCursor
	}

	for i := range blocks {
		if !blocks[i].HasChildren {
			continue
		}
		children, err := s.fetchBlocks(ctx, blocks[i].ID)
		if err != nil {
			return nil, err
		}
		blocks[i].Children = children
	}

	return blocks, nil
}

// doRequestWithRetry retries transport-level failures with exponential
// backoff. An HTTP error status is returned as-is: the API answered,
// and a non-success answer is fatal for the run.
func (s *Source) doRequestWithRetry(ctx context.Context, method, url string, body, out any) error {
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.doRequest(ctx, method, url, body, out)
		if err == nil {
			return nil
		}
		var statusErr *statusError
		if errors.As(err, &statusErr) {
			return err
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Notion-Version", s.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

// dashedID restores the canonical 8-4-4-4-12 form the page endpoints
// expect when given a dash-stripped id.
func dashedID(id string) string {
	bare := strings.ReplaceAll(id, "-", "")
	if len(bare) != 32 {
		return id
	}
	return strings.Join([]string{
		bare[0:8], bare[8:12], bare[12:16], bare[16:20], bare[20:32],
	}, "-")
}
