package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"notion_syncer/internal/domain"
	"notion_syncer/internal/relocate"
)

type Source interface {
	ID() string
	Name() string
	FetchPosts(ctx context.Context) ([]domain.Post, error)
	FetchPostByID(ctx context.Context, id string) (*domain.Post, error)
}

type PostStore interface {
	CheckSchema(ctx context.Context) error
	Upsert(ctx context.Context, row *domain.PostRow) error
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, sourceID string, syncedCount int) error
}

// ImageRelocator rewrites a post body's image references to durable
// URLs. The cache carries per-run dedup state and is owned by the
// caller.
type ImageRelocator interface {
	Rewrite(ctx context.Context, cache *relocate.Cache, body string) (string, int, error)
	RelocateURL(ctx context.Context, cache *relocate.Cache, sourceURL string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.PostRow, isNew bool) error
	Close() error
}
