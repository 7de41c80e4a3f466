package comm

import (
	"encoding/json"

	"github.com/google/uuid"
)

// NATS topics. Job topics are consumed with a queue group so one worker
// picks each message up; notify.game is plain fan-out.
const (
	TopicVisionJobs   = "jobs.vision"
	TopicValidateJobs = "jobs.validate"
	TopicArchiveJobs  = "jobs.archive"
	TopicGameNotify   = "notify.game"
	WorkerQueueGroup  = "workers"
)

// VisionJobMessage starts a capture's processing chain. The validate
// job id rides along so the worker can enqueue the continuation after
// a successful vision run.
type VisionJobMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	ValidateJobID uuid.UUID `json:"validate_job_id"`
}

// ValidateJobMessage carries the predecessor's output, the way a chain
// hands each stage the previous stage's result.
type ValidateJobMessage struct {
	JobID        uuid.UUID              `json:"job_id"`
	VisionResult map[string]interface{} `json:"vision_result"`
}

type ArchiveSessionMessage struct {
	SessionID uuid.UUID `json:"session_id"`
}

// GameNotice is a short live-update frame for one game, relayed to the
// notification hub by the API service. Best effort only; the event log
// remains the authoritative record.
type GameNotice struct {
	GameID uuid.UUID       `json:"game_id"`
	Event  string          `json:"event"` // e.g. "job", "event"
	Data   json.RawMessage `json:"data"`
}
