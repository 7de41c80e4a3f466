package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) GetByGameID(ctx context.Context, gameID uuid.UUID) (*models.StateSnapshot, error) {
	snap := &models.StateSnapshot{}
	err := s.db.QueryRow(ctx, `
		SELECT game_id, version, computed_at, state
		FROM state_snapshots
		WHERE game_id = $1
	`, gameID).Scan(&snap.GameID, &snap.Version, &snap.ComputedAt, &snap.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// Merge shallow-merges the partial state into the stored state and bumps
// the version by exactly one. The JSONB || operator does the merge and
// the increment in a single statement, so concurrent validations cannot
// skip or repeat a version.
func (s *SnapshotStore) Merge(ctx context.Context, gameID uuid.UUID, partial map[string]interface{}) (*models.StateSnapshot, error) {
	snap := &models.StateSnapshot{}
	err := s.db.QueryRow(ctx, `
		UPDATE state_snapshots
		SET version = version + 1, computed_at = now(), state = state || $2
		WHERE game_id = $1
		RETURNING game_id, version, computed_at, state
	`, gameID, partial).Scan(&snap.GameID, &snap.Version, &snap.ComputedAt, &snap.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to merge snapshot: %w", err)
	}
	return snap, nil
}
