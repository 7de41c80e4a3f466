package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

type fakeJobs struct {
	jobs map[uuid.UUID]*models.Job
}

func (f *fakeJobs) GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) MarkRunning(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &now
	job.Attempt++
	return job, nil
}

func (f *fakeJobs) MarkSucceeded(ctx context.Context, id uuid.UUID, result map[string]interface{}) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobSucceeded
	job.Result = result
	job.FinishedAt = &now
	return job, nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, id uuid.UUID, errText string) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobFailed
	job.Error = &errText
	job.FinishedAt = &now
	return job, nil
}

func (f *fakeJobs) MarkCanceled(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobCanceled
	job.FinishedAt = &now
	return job, nil
}

type fakeCaptures struct {
	captures map[uuid.UUID]*models.Capture
}

func (f *fakeCaptures) GetCaptureByID(ctx context.Context, id uuid.UUID) (*models.Capture, error) {
	c, ok := f.captures[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCaptures) SetStatus(ctx context.Context, id uuid.UUID, status models.CaptureStatus, errText *string) error {
	c, ok := f.captures[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	c.Error = errText
	return nil
}

type fakeEvents struct {
	events []*models.Event
}

func (f *fakeEvents) Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error) {
	ev := &models.Event{
		ID:        uuid.New(),
		Seq:       int64(len(f.events) + 1),
		GameID:    gameID,
		CaptureID: captureID,
		Type:      evType,
		Ts:        time.Now(),
		Actor:     actor,
		Payload:   payload,
	}
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeEvents) types() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeSnapshots struct {
	snaps map[uuid.UUID]*models.StateSnapshot
}

func (f *fakeSnapshots) Merge(ctx context.Context, gameID uuid.UUID, partial map[string]interface{}) (*models.StateSnapshot, error) {
	snap, ok := f.snaps[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	snap.Version++
	snap.ComputedAt = time.Now()
	for k, v := range partial {
		snap.State[k] = v
	}
	return snap, nil
}

type published struct {
	topic   string
	payload []byte
}

type fakePub struct {
	msgs []published
}

func (f *fakePub) Publish(topic string, payload []byte) error {
	f.msgs = append(f.msgs, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePub) byTopic(topic string) []published {
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeProc struct {
	visionResult   map[string]interface{}
	validateResult map[string]interface{}
	visionErr      error
	validateErr    error
	visionCalls    int
	validateCalls  int
}

func (f *fakeProc) Vision(ctx context.Context, capture *models.Capture) (map[string]interface{}, error) {
	f.visionCalls++
	return f.visionResult, f.visionErr
}

func (f *fakeProc) Validate(ctx context.Context, visionResult map[string]interface{}) (map[string]interface{}, error) {
	f.validateCalls++
	return f.validateResult, f.validateErr
}

type fixture struct {
	w         *Worker
	jobs      *fakeJobs
	captures  *fakeCaptures
	events    *fakeEvents
	snaps     *fakeSnapshots
	pub       *fakePub
	proc      *fakeProc
	gameID    uuid.UUID
	capture   *models.Capture
	vision    *models.Job
	validate  *models.Job
	visionMsg comm.VisionJobMessage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gameID := uuid.New()
	captureID := uuid.New()
	capture := &models.Capture{ID: captureID, GameID: gameID, Seq: 1, Status: models.CaptureCreated}

	vision := &models.Job{ID: uuid.New(), GameID: gameID, CaptureID: &captureID, Type: models.JobVision, Status: models.JobQueued, Result: map[string]interface{}{}}
	validate := &models.Job{ID: uuid.New(), GameID: gameID, CaptureID: &captureID, Type: models.JobValidate, Status: models.JobQueued, Result: map[string]interface{}{}}

	f := &fixture{
		jobs:     &fakeJobs{jobs: map[uuid.UUID]*models.Job{vision.ID: vision, validate.ID: validate}},
		captures: &fakeCaptures{captures: map[uuid.UUID]*models.Capture{captureID: capture}},
		events:   &fakeEvents{},
		snaps:    &fakeSnapshots{snaps: map[uuid.UUID]*models.StateSnapshot{gameID: {GameID: gameID, Version: 0, State: map[string]interface{}{}}}},
		pub:      &fakePub{},
		proc: &fakeProc{
			visionResult:   map[string]interface{}{"detected_pieces": []interface{}{}, "board_delta": map[string]interface{}{"changed": true}},
			validateResult: map[string]interface{}{"legal": true, "violations": []interface{}{}},
		},
		gameID:    gameID,
		capture:   capture,
		vision:    vision,
		validate:  validate,
		visionMsg: comm.VisionJobMessage{JobID: vision.ID, ValidateJobID: validate.ID},
	}
	f.w = New(f.jobs, f.captures, f.events, f.snaps, f.pub, f.proc)
	return f
}

func TestCancelBeforePickup(t *testing.T) {
	f := newFixture(t)
	f.vision.CancelRequested = true

	if err := f.w.RunVision(context.Background(), f.visionMsg); err != nil {
		t.Fatalf("RunVision: %v", err)
	}

	if f.vision.Status != models.JobCanceled {
		t.Fatalf("expected CANCELED, got %s", f.vision.Status)
	}
	if f.vision.FinishedAt == nil {
		t.Fatal("expected finish timestamp on canceled job")
	}
	if f.proc.visionCalls != 0 {
		t.Fatalf("canceled job must not run, got %d calls", f.proc.visionCalls)
	}
	if got := f.pub.byTopic(comm.TopicValidateJobs); len(got) != 0 {
		t.Fatalf("canceled vision must not enqueue validate, got %d", len(got))
	}
	if got := f.pub.byTopic(comm.TopicGameNotify); len(got) != 1 {
		t.Fatalf("expected 1 job notice, got %d", len(got))
	}
	if f.validate.Status != models.JobQueued {
		t.Fatalf("validate must stay QUEUED, got %s", f.validate.Status)
	}
}

func TestVisionSuccessEnqueuesValidate(t *testing.T) {
	f := newFixture(t)

	if err := f.w.RunVision(context.Background(), f.visionMsg); err != nil {
		t.Fatalf("RunVision: %v", err)
	}

	if f.vision.Status != models.JobSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", f.vision.Status)
	}
	if f.vision.Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", f.vision.Attempt)
	}

	queued := f.pub.byTopic(comm.TopicValidateJobs)
	if len(queued) != 1 {
		t.Fatalf("expected exactly 1 validate enqueue, got %d", len(queued))
	}
	var next comm.ValidateJobMessage
	if err := json.Unmarshal(queued[0].payload, &next); err != nil {
		t.Fatalf("decode continuation: %v", err)
	}
	if next.JobID != f.validate.ID {
		t.Fatalf("continuation targets wrong job: %s", next.JobID)
	}
	if next.VisionResult == nil {
		t.Fatal("continuation must carry the vision result")
	}

	types := f.events.types()
	if len(types) != 1 || types[0] != models.EventVisionComplete {
		t.Fatalf("expected [VISION_COMPLETE], got %v", types)
	}
	if f.capture.Status != models.CaptureAnalyzing {
		t.Fatalf("expected capture ANALYZING until validation, got %s", f.capture.Status)
	}
}

func TestVisionFailureLeavesValidateQueued(t *testing.T) {
	f := newFixture(t)
	f.proc.visionErr = errors.New("camera offline")

	err := f.w.RunVision(context.Background(), f.visionMsg)
	if err == nil {
		t.Fatal("expected the failure to surface to the runner")
	}

	if f.vision.Status != models.JobFailed {
		t.Fatalf("expected FAILED, got %s", f.vision.Status)
	}
	if f.vision.Error == nil || *f.vision.Error != "camera offline" {
		t.Fatalf("expected error text recorded, got %v", f.vision.Error)
	}
	if got := f.pub.byTopic(comm.TopicValidateJobs); len(got) != 0 {
		t.Fatalf("failed vision must not enqueue validate, got %d", len(got))
	}
	if f.validate.Status != models.JobQueued {
		t.Fatalf("validate must stay QUEUED after vision failure, got %s", f.validate.Status)
	}

	types := f.events.types()
	if len(types) != 1 || types[0] != models.EventVisionFailed {
		t.Fatalf("expected [VISION_FAILED], got %v", types)
	}
	if f.capture.Status != models.CaptureError {
		t.Fatalf("expected capture ERROR, got %s", f.capture.Status)
	}
	if f.snaps.snaps[f.gameID].Version != 0 {
		t.Fatalf("snapshot must not move on failure, got version %d", f.snaps.snaps[f.gameID].Version)
	}
}

func TestValidateSuccessBumpsSnapshotOnce(t *testing.T) {
	f := newFixture(t)

	msg := comm.ValidateJobMessage{JobID: f.validate.ID, VisionResult: f.proc.visionResult}
	if err := f.w.RunValidate(context.Background(), msg); err != nil {
		t.Fatalf("RunValidate: %v", err)
	}

	snap := f.snaps.snaps[f.gameID]
	if snap.Version != 1 {
		t.Fatalf("expected snapshot version 1, got %d", snap.Version)
	}
	validation, ok := snap.State["last_validation"].(map[string]interface{})
	if !ok || validation["legal"] != true {
		t.Fatalf("expected last_validation.legal == true, got %v", snap.State["last_validation"])
	}

	types := f.events.types()
	if len(types) != 2 || types[0] != models.EventValidationComplete || types[1] != models.EventStateSnapshotUpdated {
		t.Fatalf("expected [VALIDATION_COMPLETE STATE_SNAPSHOT_UPDATED], got %v", types)
	}
	if f.capture.Status != models.CaptureComplete {
		t.Fatalf("expected capture COMPLETE, got %s", f.capture.Status)
	}
}

func TestValidateFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.proc.validateErr = errors.New("adjudicator unavailable")

	msg := comm.ValidateJobMessage{JobID: f.validate.ID, VisionResult: f.proc.visionResult}
	if err := f.w.RunValidate(context.Background(), msg); err == nil {
		t.Fatal("expected failure to surface")
	}

	if f.validate.Status != models.JobFailed {
		t.Fatalf("expected FAILED, got %s", f.validate.Status)
	}
	if f.snaps.snaps[f.gameID].Version != 0 {
		t.Fatalf("snapshot must not move on validate failure, got %d", f.snaps.snaps[f.gameID].Version)
	}
}

// full chain: vision succeeds, its continuation message drives validate,
// the snapshot lands at version 1 with the validation merged in.
func TestVisionThenValidateEndToEnd(t *testing.T) {
	f := newFixture(t)

	if err := f.w.RunVision(context.Background(), f.visionMsg); err != nil {
		t.Fatalf("RunVision: %v", err)
	}

	queued := f.pub.byTopic(comm.TopicValidateJobs)
	if len(queued) != 1 {
		t.Fatalf("expected 1 continuation, got %d", len(queued))
	}
	var next comm.ValidateJobMessage
	if err := json.Unmarshal(queued[0].payload, &next); err != nil {
		t.Fatalf("decode continuation: %v", err)
	}

	if err := f.w.RunValidate(context.Background(), next); err != nil {
		t.Fatalf("RunValidate: %v", err)
	}

	if f.vision.Status != models.JobSucceeded || f.validate.Status != models.JobSucceeded {
		t.Fatalf("expected both jobs SUCCEEDED, got %s / %s", f.vision.Status, f.validate.Status)
	}
	snap := f.snaps.snaps[f.gameID]
	if snap.Version != 1 {
		t.Fatalf("expected version 1 after the chain, got %d", snap.Version)
	}
	if notices := f.pub.byTopic(comm.TopicGameNotify); len(notices) != 2 {
		t.Fatalf("expected a job notice per terminal transition, got %d", len(notices))
	}
}
