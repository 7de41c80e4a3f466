package models

import (
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobVision   JobType = "VISION"
	JobValidate JobType = "VALIDATE"
	JobThumb    JobType = "THUMB"
	JobReplay   JobType = "REPLAY"
	JobArchive  JobType = "ARCHIVE"
)

type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobCanceled  JobStatus = "CANCELED"
)

// Terminal reports whether no further transition may leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

type Job struct {
	ID        uuid.UUID  `json:"id"`
	GameID    uuid.UUID  `json:"game_id"`
	CaptureID *uuid.UUID `json:"capture_id,omitempty"`

	Type   JobType   `json:"type"`
	Status JobStatus `json:"status"`

	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Attempt int     `json:"attempt"` // informational only, no retry policy
	Error   *string `json:"error,omitempty"`

	Result          map[string]interface{} `json:"result"`
	CancelRequested bool                   `json:"cancel_requested"`
}
