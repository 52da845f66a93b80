package domain

import (
	"errors"
	"time"
)

// ErrPostNotFound is returned by read queries when no row matches.
var ErrPostNotFound = errors.New("post not found")

// Post statuses as stored in the posts table.
const (
	StatusDraft     = "draft"
	StatusReview    = "review"
	StatusPublished = "published"
)

// Post is the normalized representation of a source page, before the
// body is compressed for storage.
type Post struct {
	ID           string // external page id, dashes stripped
	Slug         string
	Title        string
	Tags         []string
	Body         string // markdown
	CoverURL     *string
	CreatedAt    time.Time
	PublishedAt  *time.Time
	Status       string
	CanonicalURL *string
}

// PostRow is the on-disk shape of a post: body gzip+base64 encoded,
// tags serialized as a JSON array string.
type PostRow struct {
	ID            string     `db:"id" json:"id"`
	Slug          string     `db:"slug" json:"slug"`
	Title         string     `db:"title" json:"title"`
	ContentBase64 string     `db:"content_base64" json:"content_base64"`
	Tags          string     `db:"tags" json:"tags"`
	CoverURL      *string    `db:"cover_url" json:"cover_url"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at"`
	Status        string     `db:"status" json:"status"`
	CanonicalURL  *string    `db:"canonical_url" json:"canonical_url"`
}

type SyncState struct {
	ID           int64     `db:"id"`
	SourceID     string    `db:"source_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	TotalSynced  int64     `db:"total_synced"`
}
