package models

import (
	"time"

	"github.com/google/uuid"
)

// StateSnapshot is a read cache of the latest known game state, merged
// forward by successful validation jobs. The event log is the source
// of truth; the snapshot only ever moves version by +1 per validation.
type StateSnapshot struct {
	GameID     uuid.UUID              `json:"game_id"`
	Version    int64                  `json:"version"`
	ComputedAt time.Time              `json:"computed_at"`
	State      map[string]interface{} `json:"state"`
}
