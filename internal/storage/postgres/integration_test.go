//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"notion_syncer/internal/domain"
	"notion_syncer/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations/postgres")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_posts.up.sql"),
			filepath.Join(migrationsPath, "002_create_sync_state.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM posts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) testRow(id, slug, title, tags string, createdAt time.Time) *domain.PostRow {
	return &domain.PostRow{
		ID:            id,
		Slug:          slug,
		Title:         title,
		ContentBase64: "H4sIAAAAAAAA/w==",
		Tags:          tags,
		CoverURL:      utils.Ptr("https://img.example/cover.jpg"),
		CreatedAt:     createdAt,
		Status:        domain.StatusPublished,
	}
}

func (s *PostgresIntegrationSuite) TestPostStore_Upsert_Insert() {
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := store.Upsert(s.ctx, s.testRow("abc123", "my-trip", "My Trip", `["travel"]`, now))
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM posts WHERE id = $1", "abc123")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestPostStore_Upsert_ReplacesOnConflict() {
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	s.NoError(store.Upsert(s.ctx, s.testRow("abc123", "my-trip", "My Trip", `["travel"]`, now)))

	updated := s.testRow("abc123", "my-trip-v2", "My Trip v2", `["travel","spot"]`, now)
	s.NoError(store.Upsert(s.ctx, updated))

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM posts"))
	s.Equal(1, count)

	row, err := store.GetBySlug(s.ctx, "my-trip-v2")
	s.NoError(err)
	s.Equal("My Trip v2", row.Title)
	s.Equal(`["travel","spot"]`, row.Tags)
}

func (s *PostgresIntegrationSuite) TestPostStore_ExistingIDs() {
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	s.NoError(store.Upsert(s.ctx, s.testRow("a1", "one", "One", "[]", now)))
	s.NoError(store.Upsert(s.ctx, s.testRow("b2", "two", "Two", "[]", now)))

	ids, err := store.ExistingIDs(s.ctx)
	s.NoError(err)
	s.Len(ids, 2)
	s.Contains(ids, "a1")
	s.Contains(ids, "b2")
}

func (s *PostgresIntegrationSuite) TestPostStore_List_FiltersAndOrders() {
	store := NewPostStore(s.db)
	base := time.Now().Truncate(time.Microsecond).Add(-24 * time.Hour)

	s.NoError(store.Upsert(s.ctx, s.testRow("a1", "one", "Seoul Trip", `["travel","spot"]`, base)))
	s.NoError(store.Upsert(s.ctx, s.testRow("b2", "two", "Busan Trip", `["traveling"]`, base.Add(time.Hour))))

	draft := s.testRow("c3", "three", "Draft Trip", `["travel"]`, base.Add(2*time.Hour))
	draft.Status = domain.StatusDraft
	s.NoError(store.Upsert(s.ctx, draft))

	posts, err := store.List(s.ctx, "travel", "")
	s.NoError(err)
	s.Require().Len(posts, 1)
	s.Equal("a1", posts[0].ID)

	posts, err = store.List(s.ctx, "", "trip")
	s.NoError(err)
	s.Require().Len(posts, 2)
	s.Equal("b2", posts[0].ID, "newest first")
}

func (s *PostgresIntegrationSuite) TestPostStore_GetBySlug_NotFound() {
	store := NewPostStore(s.db)

	_, err := store.GetBySlug(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrPostNotFound)
}

func (s *PostgresIntegrationSuite) TestPostStore_CheckSchema() {
	store := NewPostStore(s.db)
	s.NoError(store.CheckSchema(s.ctx))
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_GetNew() {
	store := NewSyncStateStore(s.db)

	state, err := store.Get(s.ctx, "new-source")
	s.NoError(err)
	s.Nil(state)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_UpdateAccumulates() {
	store := NewSyncStateStore(s.db)

	s.NoError(store.Update(s.ctx, "notion", 7))
	s.NoError(store.Update(s.ctx, "notion", 3))

	state, err := store.Get(s.ctx, "notion")
	s.NoError(err)
	s.Require().NotNil(state)
	s.Equal("notion", state.SourceID)
	s.Equal(int64(10), state.TotalSynced)
	s.WithinDuration(time.Now(), state.LastSyncedAt, time.Minute)
}
