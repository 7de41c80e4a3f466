package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types appended by the pipeline.
const (
	EventGameCreated          = "GAME_CREATED"
	EventGameUpdated          = "GAME_UPDATED"
	EventCaptureCreated       = "CAPTURE_CREATED"
	EventVisionComplete       = "VISION_COMPLETE"
	EventVisionFailed         = "VISION_FAILED"
	EventValidationComplete   = "VALIDATION_COMPLETE"
	EventValidationFailed     = "VALIDATION_FAILED"
	EventStateSnapshotUpdated = "STATE_SNAPSHOT_UPDATED"
	EventJobCancelRequested   = "JOB_CANCEL_REQUESTED"
	EventJobCanceled          = "JOB_CANCELED"
	EventSessionArchived      = "SESSION_ARCHIVED"
)

// Event is an append-only record of something that happened to a game.
// Seq is a table-wide monotonic cursor; within one game it gives a
// total order for resumable reads, which the row timestamp alone
// cannot (ties) and the uuid id cannot (unordered).
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Seq       int64                  `json:"seq"`
	GameID    uuid.UUID              `json:"game_id"`
	CaptureID *uuid.UUID             `json:"capture_id,omitempty"`
	Type      string                 `json:"type"`
	Ts        time.Time              `json:"ts"`
	Actor     string                 `json:"actor"`
	Payload   map[string]interface{} `json:"payload"`
}
