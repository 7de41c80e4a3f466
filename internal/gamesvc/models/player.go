package models

import (
	"github.com/google/uuid"
)

type Player struct {
	ID       uuid.UUID              `json:"id"`
	GameID   uuid.UUID              `json:"game_id"` // Foreign key to Games
	Name     string                 `json:"name"`
	Color    *string                `json:"color,omitempty"`
	Seat     *int                   `json:"seat,omitempty"` // unique within a game
	Metadata map[string]interface{} `json:"metadata"`
}
