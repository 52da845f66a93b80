package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion_syncer/internal/domain"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// one pooled connection, or each would see its own empty
	// in-memory database
	db.SetMaxOpenConns(1)

	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func testRow(id, slug, title, tags string, createdAt time.Time) *domain.PostRow {
	return &domain.PostRow{
		ID:            id,
		Slug:          slug,
		Title:         title,
		ContentBase64: "H4sIAAAAAAAA/w==",
		Tags:          tags,
		CreatedAt:     createdAt,
		Status:        domain.StatusPublished,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	row := testRow("abc123", "my-trip", "My Trip", `["travel"]`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Upsert(ctx, row))
	require.NoError(t, store.Upsert(ctx, row))

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM posts"))
	assert.Equal(t, 1, count, "re-upserting the same id must not add rows")

	got, err := store.GetBySlug(ctx, "my-trip")
	require.NoError(t, err)
	assert.Equal(t, "My Trip", got.Title)
}

func TestUpsertReplacesChangedFields(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, testRow("abc123", "my-trip", "My Trip", `["travel"]`, created)))

	updated := testRow("abc123", "my-trip-v2", "My Trip v2", `["travel","spot"]`, created)
	require.NoError(t, store.Upsert(ctx, updated))

	got, err := store.GetBySlug(ctx, "my-trip-v2")
	require.NoError(t, err)
	assert.Equal(t, "My Trip v2", got.Title)
	assert.Equal(t, `["travel","spot"]`, got.Tags)

	_, err = store.GetBySlug(ctx, "my-trip")
	assert.ErrorIs(t, err, domain.ErrPostNotFound, "the old slug is gone after replace")
}

func TestExistingIDs(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	ids, err := store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	now := time.Now().UTC()
	require.NoError(t, store.Upsert(ctx, testRow("a1", "one", "One", "[]", now)))
	require.NoError(t, store.Upsert(ctx, testRow("b2", "two", "Two", "[]", now)))

	ids, err = store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "a1")
	assert.Contains(t, ids, "b2")
}

func TestListFiltersByCategoryExactly(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, testRow("a1", "one", "One", `["travel","spot"]`, base)))
	require.NoError(t, store.Upsert(ctx, testRow("b2", "two", "Two", `["traveling"]`, base.Add(time.Hour))))
	require.NoError(t, store.Upsert(ctx, testRow("c3", "three", "Three", `["food"]`, base.Add(2*time.Hour))))

	posts, err := store.List(ctx, "travel", "")
	require.NoError(t, err)
	require.Len(t, posts, 1, `"traveling" must not match category "travel"`)
	assert.Equal(t, "a1", posts[0].ID)
}

func TestListOrdersNewestFirstAndHidesUnpublished(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, testRow("a1", "old", "Old", "[]", base)))
	require.NoError(t, store.Upsert(ctx, testRow("b2", "new", "New", "[]", base.Add(time.Hour))))

	draft := testRow("c3", "draft", "Draft", "[]", base.Add(2*time.Hour))
	draft.Status = domain.StatusDraft
	require.NoError(t, store.Upsert(ctx, draft))

	posts, err := store.List(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "b2", posts[0].ID)
	assert.Equal(t, "a1", posts[1].ID)
}

func TestListSearchesTitles(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Upsert(ctx, testRow("a1", "seoul-trip", "Seoul Trip", "[]", now)))
	require.NoError(t, store.Upsert(ctx, testRow("b2", "recipes", "Weeknight Recipes", "[]", now)))

	posts, err := store.List(ctx, "", "seoul")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "a1", posts[0].ID)
}

func TestGetBySlugFallsBackToID(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testRow("abc123", "my-trip", "My Trip", "[]", time.Now().UTC())))

	bySlug, err := store.GetBySlug(ctx, "my-trip")
	require.NoError(t, err)
	byID, err := store.GetBySlug(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, bySlug.ID, byID.ID)

	_, err = store.GetBySlug(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestCheckSchema(t *testing.T) {
	db := newTestDB(t)
	store := NewPostStore(db)
	ctx := context.Background()

	require.NoError(t, store.CheckSchema(ctx))

	_, err := db.Exec("ALTER TABLE posts DROP COLUMN canonical_url")
	require.NoError(t, err)
	err = store.CheckSchema(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canonical_url")
}

func TestSyncStateRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSyncStateStore(db)
	ctx := context.Background()

	state, err := store.Get(ctx, "notion")
	require.NoError(t, err)
	assert.Nil(t, state, "unknown source has no state")

	require.NoError(t, store.Update(ctx, "notion", 7))
	require.NoError(t, store.Update(ctx, "notion", 3))

	state, err = store.Get(ctx, "notion")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(10), state.TotalSynced, "totals accumulate across runs")
	assert.WithinDuration(t, time.Now().UTC(), state.LastSyncedAt, time.Minute)
}
