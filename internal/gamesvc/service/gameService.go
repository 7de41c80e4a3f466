package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

type GameService struct {
	gameStore     *store.GameStore
	snapshotStore *store.SnapshotStore
	eventStore    *store.EventStore
}

func NewGameService(gameStore *store.GameStore, snapshotStore *store.SnapshotStore, eventStore *store.EventStore) *GameService {
	return &GameService{
		gameStore:     gameStore,
		snapshotStore: snapshotStore,
		eventStore:    eventStore,
	}
}

func (s *GameService) CreateGame(ctx context.Context, gameType string, players []*models.Player, metadata map[string]interface{}) (*models.Game, []*models.Player, error) {
	return s.gameStore.CreateGame(ctx, gameType, players, metadata)
}

func (s *GameService) GetGameByID(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	return s.gameStore.GetGameByID(ctx, gameID)
}

func (s *GameService) PatchGame(ctx context.Context, gameID uuid.UUID, status *models.GameStatus, metadata map[string]interface{}) (*models.Game, error) {
	return s.gameStore.PatchGame(ctx, gameID, status, metadata)
}

func (s *GameService) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	return s.gameStore.DeleteGame(ctx, gameID)
}

func (s *GameService) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	return s.gameStore.ListPlayers(ctx, gameID)
}

// GetState returns the merged snapshot for a game; version 0 with an
// empty state map when no validation has succeeded yet.
func (s *GameService) GetState(ctx context.Context, gameID uuid.UUID) (*models.StateSnapshot, error) {
	return s.snapshotStore.GetByGameID(ctx, gameID)
}

// ListEvents reads the authoritative game history after a cursor. This
// is the fallback for stream consumers that missed frames.
func (s *GameService) ListEvents(ctx context.Context, gameID uuid.UUID, after int64, limit int) ([]*models.Event, error) {
	if _, err := s.gameStore.GetGameByID(ctx, gameID); err != nil {
		return nil, err
	}
	return s.eventStore.ListAfter(ctx, gameID, after, limit)
}
