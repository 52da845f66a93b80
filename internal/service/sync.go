package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"notion_syncer/internal/codec"
	"notion_syncer/internal/domain"
	"notion_syncer/internal/relocate"
)

// SyncService drives one sync run: fetch pages from the source,
// relocate their images, compress the bodies, and upsert the rows.
// Records are processed strictly in order; a record that fails is
// skipped and the run continues.
type SyncService struct {
	source    Source
	posts     PostStore
	syncState SyncStateStore
	relocator ImageRelocator // nil disables image relocation
	publisher Publisher      // nil disables post events
	logger    *slog.Logger
}

func NewSyncService(
	source Source,
	posts PostStore,
	syncState SyncStateStore,
	relocator ImageRelocator,
	publisher Publisher,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		source:    source,
		posts:     posts,
		syncState: syncState,
		relocator: relocator,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
	}
}

// Sync runs one batch. When ids is non-empty only those pages are
// fetched and written; otherwise the whole source database is synced.
func (s *SyncService) Sync(ctx context.Context, ids []string) (*domain.SyncStats, error) {
	startTime := time.Now()
	s.logger.Info("starting sync", "source_name", s.source.Name(), "requested_ids", len(ids))

	// Fail before any source call when the target table cannot take
	// our rows.
	if err := s.posts.CheckSchema(ctx); err != nil {
		return nil, fmt.Errorf("check schema: %w", err)
	}

	existing, err := s.posts.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing ids: %w", err)
	}

	posts, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	s.logger.Info("fetched posts from source", "count", len(posts))

	stats := &domain.SyncStats{
		SourceID:  s.source.ID(),
		Attempted: len(posts),
	}

	cache := relocate.NewCache()
	for i := range posts {
		post := &posts[i]

		row, imageFailures, err := s.buildRow(ctx, cache, post)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			s.logger.Warn("skipping post", "id", post.ID, "slug", post.Slug, "error", err)
			stats.Skipped++
			continue
		}
		stats.ImageFailures += imageFailures

		if err := s.posts.Upsert(ctx, row); err != nil {
			s.logger.Warn("upsert failed, skipping post", "id", post.ID, "error", err)
			stats.Skipped++
			continue
		}

		_, known := existing[row.ID]
		if known {
			stats.Updated++
		} else {
			stats.Inserted++
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, row, !known); err != nil {
				s.logger.Warn("publish failed", "id", row.ID, "error", err)
			} else {
				stats.Published++
			}
		}
	}

	if err := s.syncState.Update(ctx, s.source.ID(), stats.Inserted+stats.Updated); err != nil {
		return stats, fmt.Errorf("update sync state: %w", err)
	}

	stats.Duration = time.Since(startTime)
	s.logger.Info("sync completed",
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"image_failures", stats.ImageFailures,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) fetch(ctx context.Context, ids []string) ([]domain.Post, error) {
	if len(ids) == 0 {
		return s.source.FetchPosts(ctx)
	}

	posts := make([]domain.Post, 0, len(ids))
	for _, id := range ids {
		post, err := s.source.FetchPostByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch post %s: %w", id, err)
		}
		posts = append(posts, *post)
	}
	return posts, nil
}

// buildRow turns a normalized post into its storage row: images
// relocated, body gzip+base64 encoded, tags serialized to JSON. An
// error here ends the record, not the run.
func (s *SyncService) buildRow(ctx context.Context, cache *relocate.Cache, post *domain.Post) (*domain.PostRow, int, error) {
	body := post.Body
	coverURL := post.CoverURL
	failures := 0

	if s.relocator != nil {
		var err error
		body, failures, err = s.relocator.Rewrite(ctx, cache, body)
		if err != nil {
			return nil, failures, fmt.Errorf("relocate images: %w", err)
		}

		if coverURL != nil {
			relocated, err := s.relocator.RelocateURL(ctx, cache, *coverURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, failures, ctx.Err()
				}
				// keep the original cover URL, same degradation as
				// body images
				s.logger.Warn("cover relocation failed, keeping original URL",
					"id", post.ID, "url", *coverURL, "error", err)
				failures++
			} else {
				coverURL = &relocated
			}
		}
	}

	encoded, err := codec.Encode(body)
	if err != nil {
		return nil, failures, fmt.Errorf("encode body: %w", err)
	}

	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, failures, fmt.Errorf("marshal tags: %w", err)
	}

	return &domain.PostRow{
		ID:            post.ID,
		Slug:          post.Slug,
		Title:         post.Title,
		ContentBase64: encoded,
		Tags:          string(tagsJSON),
		CoverURL:      coverURL,
		CreatedAt:     post.CreatedAt,
		PublishedAt:   post.PublishedAt,
		Status:        post.Status,
		CanonicalURL:  post.CanonicalURL,
	}, failures, nil
}
