package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"notion_syncer/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

// Get returns the sync state for a source, or nil when the source has
// never completed a run.
func (s *SyncStateStore) Get(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `SELECT id, source_id, last_synced_at, total_synced FROM sync_state WHERE source_id = $1`

	err := s.db.GetContext(ctx, &state, query, sourceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Update records a completed run, accumulating the total synced count.
func (s *SyncStateStore) Update(ctx context.Context, sourceID string, syncedCount int) error {
	query := `
		INSERT INTO sync_state (source_id, last_synced_at, total_synced)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			total_synced = sync_state.total_synced + EXCLUDED.total_synced`

	_, err := s.db.ExecContext(ctx, query, sourceID, time.Now().UTC(), syncedCount)
	return err
}
