package d1

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notion_syncer/internal/domain"
)

var requiredColumns = []string{
	"id", "slug", "title", "content_base64", "tags",
	"cover_url", "created_at", "published_at", "status", "canonical_url",
}

type PostStore struct {
	client *Client
}

func NewPostStore(client *Client) *PostStore {
	return &PostStore{client: client}
}

// CheckSchema verifies the posts table carries every column the
// writer needs; run once at startup before any network call.
func (s *PostStore) CheckSchema(ctx context.Context) error {
	rows, err := s.client.Query(ctx, "PRAGMA table_info(posts)")
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			present[name] = true
		}
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

// Upsert inserts or replaces the row keyed by id. Values are inlined
// as SQL literals because wrangler's --command takes a single string;
// quoteText doubles embedded quotes.
func (s *PostStore) Upsert(ctx context.Context, row *domain.PostRow) error {
	statement := fmt.Sprintf(`INSERT OR REPLACE INTO posts (id, slug, title, content_base64, tags, cover_url, created_at, published_at, status, canonical_url) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		quoteText(row.ID),
		quoteText(row.Slug),
		quoteText(row.Title),
		quoteText(row.ContentBase64),
		quoteText(row.Tags),
		quoteNullableText(row.CoverURL),
		quoteTime(row.CreatedAt),
		quoteNullableTime(row.PublishedAt),
		quoteText(row.Status),
		quoteNullableText(row.CanonicalURL),
	)
	return s.client.Exec(ctx, statement)
}

func (s *PostStore) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.client.Query(ctx, "SELECT id FROM posts")
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

// List returns published rows, newest first, optionally filtered by
// exact tag membership and a case-insensitive title search.
func (s *PostStore) List(ctx context.Context, category, search string) ([]domain.PostRow, error) {
	statement := `SELECT * FROM posts WHERE status = 'published'`
	if category != "" {
		statement += ` AND tags LIKE ` + quoteText(`%"`+category+`"%`)
	}
	if search != "" {
		statement += ` AND LOWER(title) LIKE ` + quoteText("%"+strings.ToLower(search)+"%")
	}
	statement += ` ORDER BY created_at DESC`

	rows, err := s.client.Query(ctx, statement)
	if err != nil {
		return nil, err
	}

	posts := make([]domain.PostRow, 0, len(rows))
	for _, row := range rows {
		post, err := rowToPost(row)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// GetBySlug fetches one row by slug, falling back to an id match.
func (s *PostStore) GetBySlug(ctx context.Context, slug string) (*domain.PostRow, error) {
	q := quoteText(slug)
	statement := fmt.Sprintf(`SELECT * FROM posts WHERE slug = %s OR id = %s LIMIT 1`, q, q)

	rows, err := s.client.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrPostNotFound
	}

	post, err := rowToPost(rows[0])
	if err != nil {
		return nil, err
	}
	return &post, nil
}

type SyncStateStore struct {
	client *Client
}

func NewSyncStateStore(client *Client) *SyncStateStore {
	return &SyncStateStore{client: client}
}

func (s *SyncStateStore) Get(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	statement := `SELECT * FROM sync_state WHERE source_id = ` + quoteText(sourceID)

	rows, err := s.client.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	state := &domain.SyncState{}
	if v, ok := row["id"].(float64); ok {
		state.ID = int64(v)
	}
	state.SourceID, _ = row["source_id"].(string)
	if v, ok := row["total_synced"].(float64); ok {
		state.TotalSynced = int64(v)
	}
	if v, ok := row["last_synced_at"].(string); ok {
		if ts, err := parseTime(v); err == nil {
			state.LastSyncedAt = ts
		}
	}
	return state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, sourceID string, syncedCount int) error {
	statement := fmt.Sprintf(`INSERT INTO sync_state (source_id, last_synced_at, total_synced) VALUES (%s, %s, %d)
		ON CONFLICT (source_id) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			total_synced = sync_state.total_synced + excluded.total_synced`,
		quoteText(sourceID),
		quoteTime(time.Now().UTC()),
		syncedCount,
	)
	return s.client.Exec(ctx, statement)
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteNullableText(s *string) string {
	if s == nil {
		return "NULL"
	}
	return quoteText(*s)
}

func quoteTime(t time.Time) string {
	return quoteText(t.UTC().Format(time.RFC3339))
}

func quoteNullableTime(t *time.Time) string {
	if t == nil {
		return "NULL"
	}
	return quoteTime(*t)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}

func rowToPost(row map[string]any) (domain.PostRow, error) {
	var post domain.PostRow
	post.ID, _ = row["id"].(string)
	post.Slug, _ = row["slug"].(string)
	post.Title, _ = row["title"].(string)
	post.ContentBase64, _ = row["content_base64"].(string)
	post.Tags, _ = row["tags"].(string)
	post.Status, _ = row["status"].(string)

	if v, ok := row["cover_url"].(string); ok {
		post.CoverURL = &v
	}
	if v, ok := row["canonical_url"].(string); ok {
		post.CanonicalURL = &v
	}
	if v, ok := row["created_at"].(string); ok {
		ts, err := parseTime(v)
		if err != nil {
			return post, fmt.Errorf("row %s: %w", post.ID, err)
		}
		post.CreatedAt = ts
	}
	if v, ok := row["published_at"].(string); ok {
		ts, err := parseTime(v)
		if err != nil {
			return post, fmt.Errorf("row %s: %w", post.ID, err)
		}
		post.PublishedAt = &ts
	}
	return post, nil
}
