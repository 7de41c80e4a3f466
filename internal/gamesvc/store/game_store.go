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

type GameStore struct {
	db *pgxpool.Pool
}

func NewGameStore(db *pgxpool.Pool) *GameStore {
	return &GameStore{db: db}
}

// CreateGame persists the game together with its players, its version 0
// snapshot and the GAME_CREATED event in one transaction.
func (s *GameStore) CreateGame(ctx context.Context, gameType string, players []*models.Player, metadata map[string]interface{}) (*models.Game, []*models.Player, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	game := &models.Game{
		ID:       uuid.New(),
		GameType: gameType,
		Status:   models.GameActive,
		Metadata: metadata,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO games (id, game_type, status, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, game.ID, game.GameType, game.Status, game.Metadata).Scan(&game.CreatedAt, &game.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert game: %w", err)
	}

	for _, p := range players {
		p.ID = uuid.New()
		p.GameID = game.ID
		if p.Metadata == nil {
			p.Metadata = map[string]interface{}{}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO players (id, game_id, name, color, seat, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.GameID, p.Name, p.Color, p.Seat, p.Metadata)
		if err != nil {
			if isUniqueViolation(err, "uq_players_game_seat") {
				return nil, nil, fmt.Errorf("seat already taken in game %s: %w", game.ID, ErrConflict)
			}
			return nil, nil, fmt.Errorf("failed to insert player %s: %w", p.Name, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO state_snapshots (game_id, version, state) VALUES ($1, 0, '{}')
	`, game.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = insertEvent(ctx, tx, game.ID, nil, models.EventGameCreated, "system",
		map[string]interface{}{"game_type": gameType})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit game create: %w", err)
	}

	return game, players, nil
}

func (s *GameStore) GetGameByID(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	query := `
		SELECT id, game_type, status, created_at, updated_at, metadata
		FROM games
		WHERE id = $1
	`

	game := &models.Game{}
	err := s.db.QueryRow(ctx, query, gameID).Scan(
		&game.ID,
		&game.GameType,
		&game.Status,
		&game.CreatedAt,
		&game.UpdatedAt,
		&game.Metadata,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game by ID: %w", err)
	}

	return game, nil
}

// PatchGame applies a status and/or metadata change and records what
// changed as a GAME_UPDATED event. A patch that changes nothing appends
// no event.
func (s *GameStore) PatchGame(ctx context.Context, gameID uuid.UUID, status *models.GameStatus, metadata map[string]interface{}) (*models.Game, error) {
	game, err := s.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	if status != nil && *status != game.Status {
		game.Status = *status
		changed["status"] = string(*status)
	}
	if metadata != nil {
		game.Metadata = metadata
		changed["metadata"] = true
	}
	if len(changed) == 0 {
		return game, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE games SET status = $2, metadata = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, game.ID, game.Status, game.Metadata).Scan(&game.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to patch game: %w", err)
	}

	_, err = insertEvent(ctx, tx, game.ID, nil, models.EventGameUpdated, "system", changed)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit game patch: %w", err)
	}

	return game, nil
}

func (s *GameStore) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, game_id, name, color, seat, metadata
		FROM players
		WHERE game_id = $1
		ORDER BY seat NULLS LAST, name
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		var p models.Player
		err := rows.Scan(&p.ID, &p.GameID, &p.Name, &p.Color, &p.Seat, &p.Metadata)
		if err != nil {
			return nil, err
		}
		players = append(players, &p)
	}

	return players, rows.Err()
}

// DeleteGame removes the game; captures, jobs, events, players and the
// snapshot go with it through the FK cascades.
func (s *GameStore) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
