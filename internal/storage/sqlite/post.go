// Package sqlite stores posts in a local SQLite file, the stand-in
// for a D1 database when syncing and serving locally.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"notion_syncer/internal/domain"
)

// Open connects to the SQLite database at path.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL,
	title TEXT NOT NULL,
	content_base64 TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	cover_url TEXT,
	created_at TIMESTAMP NOT NULL,
	published_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'published',
	canonical_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_posts_slug ON posts (slug);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at);

CREATE TABLE IF NOT EXISTS sync_state (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL UNIQUE,
	last_synced_at TIMESTAMP NOT NULL,
	total_synced INTEGER NOT NULL DEFAULT 0
);
`

// EnsureSchema creates the tables when missing. Local targets only;
// remote schemas are managed by migrations.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

var requiredColumns = []string{
	"id", "slug", "title", "content_base64", "tags",
	"cover_url", "created_at", "published_at", "status", "canonical_url",
}

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// CheckSchema verifies the posts table carries every column the
// writer needs; run once at startup before any network call.
func (s *PostStore) CheckSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(posts)")
	if err != nil {
		return err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
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

// Upsert inserts or replaces the row keyed by id. Last write wins.
func (s *PostStore) Upsert(ctx context.Context, row *domain.PostRow) error {
	query := `
		INSERT OR REPLACE INTO posts (
			id, slug, title, content_base64, tags, cover_url,
			created_at, published_at, status, canonical_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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

// List returns published rows, newest first. category filters by exact
// tag membership in the JSON tags column; search matches titles
// case-insensitively.
func (s *PostStore) List(ctx context.Context, category, search string) ([]domain.PostRow, error) {
	query := `SELECT * FROM posts WHERE status = 'published'`
	var args []any

	if category != "" {
		query += ` AND tags LIKE ?`
		args = append(args, `%"`+category+`"%`)
	}
	if search != "" {
		query += ` AND LOWER(title) LIKE ?`
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	query += ` ORDER BY created_at DESC`

	var posts []domain.PostRow
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetBySlug fetches one row by slug, falling back to an id match so
// manual re-runs can use either handle.
func (s *PostStore) GetBySlug(ctx context.Context, slug string) (*domain.PostRow, error) {
	var row domain.PostRow
	query := `SELECT * FROM posts WHERE slug = ? OR id = ? LIMIT 1`

	err := s.db.GetContext(ctx, &row, query, slug, slug)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
