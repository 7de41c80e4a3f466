package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

type gameGetter interface {
	GetGameByID(ctx context.Context, gameID uuid.UUID) (*models.Game, error)
}

type captureStore interface {
	CreateWithSeq(ctx context.Context, gameID uuid.UUID, deviceID *string) (*models.Capture, error)
	GetCaptureByID(ctx context.Context, captureID uuid.UUID) (*models.Capture, error)
	ListByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Capture, error)
}

type jobStore interface {
	CreateJob(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, jobType models.JobType) (*models.Job, error)
	ListByCapture(ctx context.Context, captureID uuid.UUID) ([]*models.Job, error)
}

type eventAppender interface {
	Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error)
}

type publisher interface {
	Publish(topic string, payload []byte) error
}

// CaptureService accepts capture requests and spawns the processing
// chain. The HTTP caller gets "accepted" straight away; everything
// after the enqueue happens in the workers.
type CaptureService struct {
	games    gameGetter
	captures captureStore
	jobs     jobStore
	events   eventAppender
	pub      publisher
	idem     *Idempotency // optional
}

func NewCaptureService(games gameGetter, captures captureStore, jobs jobStore, events eventAppender, pub publisher, idem *Idempotency) *CaptureService {
	return &CaptureService{
		games:    games,
		captures: captures,
		jobs:     jobs,
		events:   events,
		pub:      pub,
		idem:     idem,
	}
}

// CreateCapture allocates the next capture seq for the game, persists
// the capture with its VISION and VALIDATE jobs and enqueues the chain.
// The returned bool reports an idempotent replay: the capture already
// existed for this idempotency key and nothing new was spawned.
func (s *CaptureService) CreateCapture(ctx context.Context, gameID uuid.UUID, deviceID *string, idemKey string) (*models.Capture, []*models.Job, bool, error) {
	if _, err := s.games.GetGameByID(ctx, gameID); err != nil {
		return nil, nil, false, err
	}

	if idemKey != "" && s.idem != nil {
		existingID, found, err := s.idem.Lookup(ctx, idemKey)
		if err != nil {
			log.Warnf("idempotency lookup failed for key %s: %s", idemKey, err)
		} else if found {
			capture, err := s.captures.GetCaptureByID(ctx, existingID)
			if err != nil {
				return nil, nil, false, err
			}
			jobs, err := s.jobs.ListByCapture(ctx, capture.ID)
			if err != nil {
				return nil, nil, false, err
			}
			return capture, jobs, true, nil
		}
	}

	capture, err := s.captures.CreateWithSeq(ctx, gameID, deviceID)
	if err != nil {
		return nil, nil, false, err
	}

	visionJob, err := s.jobs.CreateJob(ctx, gameID, &capture.ID, models.JobVision)
	if err != nil {
		return nil, nil, false, err
	}
	validateJob, err := s.jobs.CreateJob(ctx, gameID, &capture.ID, models.JobValidate)
	if err != nil {
		return nil, nil, false, err
	}

	payload := map[string]interface{}{"seq": capture.Seq}
	if deviceID != nil {
		payload["device_id"] = *deviceID
	}
	if _, err := s.events.Append(ctx, gameID, &capture.ID, models.EventCaptureCreated, "system", payload); err != nil {
		log.Errorf("Error appending capture event %s", err)
	}

	if idemKey != "" && s.idem != nil {
		if err := s.idem.Store(ctx, idemKey, capture.ID); err != nil {
			log.Warnf("idempotency store failed for key %s: %s", idemKey, err)
		}
	}

	chain := comm.VisionJobMessage{JobID: visionJob.ID, ValidateJobID: validateJob.ID}
	bytes, err := json.Marshal(chain)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to marshal vision chain: %w", err)
	}
	if err := s.pub.Publish(comm.TopicVisionJobs, bytes); err != nil {
		return nil, nil, false, fmt.Errorf("failed to enqueue vision chain: %w", err)
	}

	s.publishCaptureNotice(gameID, capture)

	return capture, []*models.Job{visionJob, validateJob}, false, nil
}

func (s *CaptureService) GetCaptureByID(ctx context.Context, captureID uuid.UUID) (*models.Capture, error) {
	return s.captures.GetCaptureByID(ctx, captureID)
}

func (s *CaptureService) ListByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Capture, error) {
	if _, err := s.games.GetGameByID(ctx, gameID); err != nil {
		return nil, err
	}
	return s.captures.ListByGame(ctx, gameID)
}

func (s *CaptureService) ListJobs(ctx context.Context, captureID uuid.UUID) ([]*models.Job, error) {
	if _, err := s.captures.GetCaptureByID(ctx, captureID); err != nil {
		return nil, err
	}
	return s.jobs.ListByCapture(ctx, captureID)
}

func (s *CaptureService) publishCaptureNotice(gameID uuid.UUID, capture *models.Capture) {
	data, err := json.Marshal(map[string]interface{}{
		"type":       models.EventCaptureCreated,
		"capture_id": capture.ID.String(),
		"seq":        capture.Seq,
	})
	if err != nil {
		log.Errorf("Error marshaling capture notice %s", err)
		return
	}
	notice := comm.GameNotice{GameID: gameID, Event: "event", Data: data}
	bytes, err := json.Marshal(notice)
	if err != nil {
		log.Errorf("Error marshaling game notice %s", err)
		return
	}
	if err := s.pub.Publish(comm.TopicGameNotify, bytes); err != nil {
		log.Errorf("Error publishing to topic %s: %s", comm.TopicGameNotify, err)
	}
}

// ensure the concrete stores satisfy the service interfaces
var (
	_ gameGetter    = (*store.GameStore)(nil)
	_ captureStore  = (*store.CaptureStore)(nil)
	_ jobStore      = (*store.JobStore)(nil)
	_ eventAppender = (*store.EventStore)(nil)
)
