package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"notion_syncer/internal/domain"
)

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

var requiredColumns = []string{
	"id", "slug", "title", "content_base64", "tags",
	"cover_url", "created_at", "published_at", "status", "canonical_url",
}

// CheckSchema verifies the posts table carries every column the
// writer needs; run once at startup before any network call.
func (s *PostStore) CheckSchema(ctx context.Context) error {
	query := `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'posts' AND column_name = ANY($1)`

	var found []string
	if err := s.db.SelectContext(ctx, &found, query, pq.Array(requiredColumns)); err != nil {
		return err
	}

	present := make(map[string]bool, len(found))
	for _, col := range found {
		present[col] = true
	}

	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("posts table schema mismatch, missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Upsert inserts or fully replaces the row keyed by id. Last write
// wins.
func (s *PostStore) Upsert(ctx context.Context, row *domain.PostRow) error {
	query := `
		INSERT INTO posts (
			id, slug, title, content_base64, tags, cover_url,
			created_at, published_at, status, canonical_url
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			title = EXCLUDED.title,
			content_base64 = EXCLUDED.content_base64,
			tags = EXCLUDED.tags,
			cover_url = EXCLUDED.cover_url,
			created_at = EXCLUDED.created_at,
			published_at = EXCLUDED.published_at,
			status = EXCLUDED.status,
			canonical_url = EXCLUDED.canonical_url`

	_, err := s.db.ExecContext(ctx, query,
		row.ID,
		row.Slug,
		row.Title,
		row.ContentBase64,
		row.Tags,
		row.CoverURL,
		row.CreatedAt,
		row.PublishedAt,
		row.Status,
		row.CanonicalURL,
	)
	return err
}

func (s *PostStore) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM posts"); err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// List returns published rows, newest first, optionally filtered by
// exact tag membership and a case-insensitive title search.
func (s *PostStore) List(ctx context.Context, category, search string) ([]domain.PostRow, error) {
	query := `SELECT * FROM posts WHERE status = 'published'`
	var args []any

	if category != "" {
		args = append(args, `%"`+category+`"%`)
		query += fmt.Sprintf(` AND tags LIKE $%d`, len(args))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(` AND title ILIKE $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	var posts []domain.PostRow
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetBySlug fetches one row by slug, falling back to an id match.
func (s *PostStore) GetBySlug(ctx context.Context, slug string) (*domain.PostRow, error) {
	var row domain.PostRow
	query := `SELECT * FROM posts WHERE slug = $1 OR id = $1 LIMIT 1`

	err := s.db.GetContext(ctx, &row, query, slug)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
