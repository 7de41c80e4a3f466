package models

import (
	"time"

	"github.com/google/uuid"
)

type CaptureStatus string

const (
	CaptureCreated   CaptureStatus = "CREATED"
	CaptureStored    CaptureStatus = "STORED"
	CaptureAnalyzing CaptureStatus = "ANALYZING"
	CaptureComplete  CaptureStatus = "COMPLETE"
	CaptureError     CaptureStatus = "ERROR"
)

// Capture is one recorded observation of the table, numbered
// sequentially within its game.
type Capture struct {
	ID             uuid.UUID     `json:"id"`
	GameID         uuid.UUID     `json:"game_id"`
	Seq            int64         `json:"seq"` // per-game, unique, monotonic
	CreatedAt      time.Time     `json:"created_at"`
	SourceDeviceID *string       `json:"source_device_id,omitempty"`
	ImagePath      *string       `json:"image_path,omitempty"`
	ThumbPath      *string       `json:"thumb_path,omitempty"`
	SHA256         *string       `json:"sha256,omitempty"`
	Status         CaptureStatus `json:"status"`
	Error          *string       `json:"error,omitempty"`
}
