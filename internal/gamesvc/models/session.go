package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionOpen     SessionStatus = "OPEN"
	SessionClosing  SessionStatus = "CLOSING"
	SessionArchived SessionStatus = "ARCHIVED"
)

// Session groups the image files one sitting at the table produced.
// Its files live under the incoming directory until archival.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	GameID    *uuid.UUID    `json:"game_id,omitempty"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Play is one recorded file belonging to a session.
type Play struct {
	ID        uuid.UUID  `json:"id"`
	SessionID uuid.UUID  `json:"session_id"`
	Filename  string     `json:"filename"`
	CaptureID *uuid.UUID `json:"capture_id,omitempty"`
}
