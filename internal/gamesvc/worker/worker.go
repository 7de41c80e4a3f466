// Package worker executes capture processing jobs picked up from the
// job topics. Each job is one unit of work; all coordination happens
// through the persisted job/capture/event/snapshot rows, never through
// shared memory between jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

const jobTimeout = 120 * time.Second

type JobStore interface {
	GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	MarkRunning(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	MarkSucceeded(ctx context.Context, jobID uuid.UUID, result map[string]interface{}) (*models.Job, error)
	MarkFailed(ctx context.Context, jobID uuid.UUID, errText string) (*models.Job, error)
	MarkCanceled(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
}

type CaptureStore interface {
	GetCaptureByID(ctx context.Context, captureID uuid.UUID) (*models.Capture, error)
	SetStatus(ctx context.Context, captureID uuid.UUID, status models.CaptureStatus, errText *string) error
}

type EventStore interface {
	Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error)
}

type SnapshotStore interface {
	Merge(ctx context.Context, gameID uuid.UUID, partial map[string]interface{}) (*models.StateSnapshot, error)
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Processor is the boundary to the external vision and adjudication
// services. Both calls are opaque: a result map or an error.
type Processor interface {
	Vision(ctx context.Context, capture *models.Capture) (map[string]interface{}, error)
	Validate(ctx context.Context, visionResult map[string]interface{}) (map[string]interface{}, error)
}

type Worker struct {
	jobs      JobStore
	captures  CaptureStore
	events    EventStore
	snapshots SnapshotStore
	pub       Publisher
	proc      Processor
}

func New(jobs JobStore, captures CaptureStore, events EventStore, snapshots SnapshotStore, pub Publisher, proc Processor) *Worker {
	return &Worker{
		jobs:      jobs,
		captures:  captures,
		events:    events,
		snapshots: snapshots,
		pub:       pub,
		proc:      proc,
	}
}

// Subscribe attaches the worker to the job topics with a queue group so
// each message goes to exactly one worker instance.
func (w *Worker) Subscribe(conn *nats.Conn) ([]*nats.Subscription, error) {
	visionSub, err := conn.QueueSubscribe(comm.TopicVisionJobs, comm.WorkerQueueGroup, w.handleVisionMsg)
	if err != nil {
		return nil, err
	}
	validateSub, err := conn.QueueSubscribe(comm.TopicValidateJobs, comm.WorkerQueueGroup, w.handleValidateMsg)
	if err != nil {
		visionSub.Unsubscribe()
		return nil, err
	}
	return []*nats.Subscription{visionSub, validateSub}, nil
}

func (w *Worker) handleVisionMsg(msgNats *nats.Msg) {
	m := comm.VisionJobMessage{}
	if err := json.Unmarshal(msgNats.Data, &m); err != nil {
		log.Errorf("Error decoding vision job message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := w.RunVision(ctx, m); err != nil {
		// already recorded on the job row and event log; surfaced here
		// so monitoring sees it
		log.Errorf("Error vision job %s failed: %s", m.JobID, err)
	}
}

func (w *Worker) handleValidateMsg(msgNats *nats.Msg) {
	m := comm.ValidateJobMessage{}
	if err := json.Unmarshal(msgNats.Data, &m); err != nil {
		log.Errorf("Error decoding validate job message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := w.RunValidate(ctx, m); err != nil {
		log.Errorf("Error validate job %s failed: %s", m.JobID, err)
	}
}

// RunVision drives one vision job through the state machine. On success
// the paired validate job is enqueued as a continuation carrying the
// vision result; on failure or cancellation it never is.
func (w *Worker) RunVision(ctx context.Context, m comm.VisionJobMessage) error {
	job, proceed, err := w.pickup(ctx, m.JobID)
	if err != nil || !proceed {
		return err
	}

	var capture *models.Capture
	if job.CaptureID != nil {
		capture, err = w.captures.GetCaptureByID(ctx, *job.CaptureID)
		if err != nil {
			return w.fail(ctx, job, models.EventVisionFailed, fmt.Errorf("capture lookup: %w", err))
		}
		if err := w.captures.SetStatus(ctx, capture.ID, models.CaptureAnalyzing, nil); err != nil {
			log.Warnf("unable to advance capture %s to ANALYZING: %s", capture.ID, err)
		}
	}

	result, err := w.proc.Vision(ctx, capture)
	if err != nil {
		return w.fail(ctx, job, models.EventVisionFailed, err)
	}

	job, err = w.jobs.MarkSucceeded(ctx, job.ID, result)
	if err != nil {
		return fmt.Errorf("failed to mark vision job succeeded: %w", err)
	}

	_, err = w.events.Append(ctx, job.GameID, job.CaptureID, models.EventVisionComplete, "system",
		map[string]interface{}{
			"job_id":  job.ID.String(),
			"summary": map[string]interface{}{"pieces": pieceCount(result)},
		})
	if err != nil {
		log.Errorf("Error appending vision event %s", err)
	}

	w.publishJobNotice(job)

	// continuation: next stage only ever runs after this one succeeded
	next := comm.ValidateJobMessage{JobID: m.ValidateJobID, VisionResult: result}
	bytes, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal validate message: %w", err)
	}
	if err := w.pub.Publish(comm.TopicValidateJobs, bytes); err != nil {
		return fmt.Errorf("failed to enqueue validate job: %w", err)
	}

	return nil
}

// RunValidate drives one validate job: runs the adjudication call,
// merges its result into the game snapshot and records the new version.
func (w *Worker) RunValidate(ctx context.Context, m comm.ValidateJobMessage) error {
	job, proceed, err := w.pickup(ctx, m.JobID)
	if err != nil || !proceed {
		return err
	}

	validation, err := w.proc.Validate(ctx, m.VisionResult)
	if err != nil {
		return w.fail(ctx, job, models.EventValidationFailed, err)
	}

	job, err = w.jobs.MarkSucceeded(ctx, job.ID, validation)
	if err != nil {
		return fmt.Errorf("failed to mark validate job succeeded: %w", err)
	}

	_, err = w.events.Append(ctx, job.GameID, job.CaptureID, models.EventValidationComplete, "system",
		map[string]interface{}{"job_id": job.ID.String(), "legal": validation["legal"]})
	if err != nil {
		log.Errorf("Error appending validation event %s", err)
	}

	partial := map[string]interface{}{"last_validation": validation}
	if job.CaptureID != nil {
		partial["last_capture_id"] = job.CaptureID.String()
	}
	snap, err := w.snapshots.Merge(ctx, job.GameID, partial)
	if err != nil {
		log.Errorf("Error merging snapshot for game %s: %s", job.GameID, err)
	} else {
		_, err = w.events.Append(ctx, job.GameID, job.CaptureID, models.EventStateSnapshotUpdated, "system",
			map[string]interface{}{"version": snap.Version})
		if err != nil {
			log.Errorf("Error appending snapshot event %s", err)
		}
	}

	if job.CaptureID != nil {
		if err := w.captures.SetStatus(ctx, *job.CaptureID, models.CaptureComplete, nil); err != nil {
			log.Warnf("unable to advance capture %s to COMPLETE: %s", *job.CaptureID, err)
		}
	}

	w.publishJobNotice(job)
	return nil
}

// pickup loads the job and applies the start-boundary cancel check.
// Cancellation is cooperative and only honored here; a job past this
// point runs to completion.
func (w *Worker) pickup(ctx context.Context, jobID uuid.UUID) (*models.Job, bool, error) {
	job, err := w.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warnf("job %s vanished before pickup", jobID)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if job.CancelRequested {
		job, err = w.jobs.MarkCanceled(ctx, job.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to cancel job %s: %w", jobID, err)
		}
		w.publishJobNotice(job)
		return job, false, nil
	}

	job, err = w.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark job %s running: %w", jobID, err)
	}
	return job, true, nil
}

// fail records the error on the job row and the event log, contains it
// to this job, and returns it so the runner observes the failure. The
// capture and sibling jobs are never rolled back.
func (w *Worker) fail(ctx context.Context, job *models.Job, evType string, cause error) error {
	failed, err := w.jobs.MarkFailed(ctx, job.ID, cause.Error())
	if err != nil {
		log.Errorf("Error marking job %s failed: %s", job.ID, err)
		return cause
	}

	_, err = w.events.Append(ctx, failed.GameID, failed.CaptureID, evType, "system",
		map[string]interface{}{"job_id": failed.ID.String(), "error": cause.Error()})
	if err != nil {
		log.Errorf("Error appending failure event %s", err)
	}

	if failed.CaptureID != nil {
		errText := cause.Error()
		if err := w.captures.SetStatus(ctx, *failed.CaptureID, models.CaptureError, &errText); err != nil {
			log.Warnf("unable to advance capture %s to ERROR: %s", *failed.CaptureID, err)
		}
	}

	w.publishJobNotice(failed)
	return cause
}

func (w *Worker) publishJobNotice(job *models.Job) {
	data, err := json.Marshal(map[string]interface{}{
		"job_id": job.ID.String(),
		"status": job.Status,
		"type":   job.Type,
	})
	if err != nil {
		log.Errorf("Error marshaling job notice %s", err)
		return
	}
	notice := comm.GameNotice{GameID: job.GameID, Event: "job", Data: data}
	bytes, err := json.Marshal(notice)
	if err != nil {
		log.Errorf("Error marshaling game notice %s", err)
		return
	}
	if err := w.pub.Publish(comm.TopicGameNotify, bytes); err != nil {
		log.Errorf("Error publishing to topic %s: %s", comm.TopicGameNotify, err)
	}
}

func pieceCount(result map[string]interface{}) int {
	if pieces, ok := result["detected_pieces"].([]interface{}); ok {
		return len(pieces)
	}
	return 0
}
