package models

import (
	"time"

	"github.com/google/uuid"
)

type GameStatus string

const (
	GameActive   GameStatus = "ACTIVE"
	GamePaused   GameStatus = "PAUSED"
	GameFinished GameStatus = "FINISHED"
	GameArchived GameStatus = "ARCHIVED"
)

type Game struct {
	ID        uuid.UUID              `json:"id"`        // Primary key
	GameType  string                 `json:"game_type"` // e.g. "chess", "catan"
	Status    GameStatus             `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata"`
}
