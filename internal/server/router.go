// Package server exposes the synced posts over a small read-only HTTP
// API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"notion_syncer/internal/codec"
	"notion_syncer/internal/domain"
)

var errMissingPostReader = errors.New("post reader dependency required")

// PostReader is the slice of the store the API needs.
type PostReader interface {
	List(ctx context.Context, category, search string) ([]domain.PostRow, error)
	GetBySlug(ctx context.Context, slug string) (*domain.PostRow, error)
}

type Dependencies struct {
	Posts  PostReader
	Logger *slog.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Posts == nil {
		return nil, errMissingPostReader
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		posts:  deps.Posts,
		logger: logger,
	}

	router.GET("/api/posts", handler.handleListPosts)
	router.GET("/api/posts/:slug", handler.handleGetPost)

	return router, nil
}

type httpHandler struct {
	posts  PostReader
	logger *slog.Logger
}

// postSummary is the list shape: metadata only, no body.
type postSummary struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	Tags         []string   `json:"tags"`
	CoverURL     *string    `json:"cover_url"`
	CreatedAt    time.Time  `json:"created_at"`
	PublishedAt  *time.Time `json:"published_at"`
	CanonicalURL *string    `json:"canonical_url"`
}

// postDetail adds the decoded markdown body.
type postDetail struct {
	postSummary
	Content string `json:"content"`
}

func toSummary(row *domain.PostRow) postSummary {
	tags := []string{}
	if row.Tags != "" {
		// stored as a JSON array; a bad value degrades to no tags
		_ = json.Unmarshal([]byte(row.Tags), &tags)
	}
	return postSummary{
		ID:           row.ID,
		Slug:         row.Slug,
		Title:        row.Title,
		Tags:         tags,
		CoverURL:     row.CoverURL,
		CreatedAt:    row.CreatedAt,
		PublishedAt:  row.PublishedAt,
		CanonicalURL: row.CanonicalURL,
	}
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	category := c.Query("category")
	search := c.Query("q")

	rows, err := h.posts.List(c.Request.Context(), category, search)
	if err != nil {
		h.logger.Error("list posts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	posts := make([]postSummary, 0, len(rows))
	for i := range rows {
		posts = append(posts, toSummary(&rows[i]))
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	slug := c.Param("slug")

	row, err := h.posts.GetBySlug(c.Request.Context(), slug)
	if errors.Is(err, domain.ErrPostNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("get post failed", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	content, err := codec.Decode(row.ContentBase64)
	if err != nil {
		h.logger.Error("decode post body failed", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, postDetail{
		postSummary: toSummary(row),
		Content:     content,
	})
}
