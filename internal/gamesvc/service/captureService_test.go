package service

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

type fakeGames struct {
	games map[uuid.UUID]*models.Game
}

func (f *fakeGames) GetGameByID(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, ok := f.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g, nil
}

type fakeCaptures struct {
	captures map[uuid.UUID]*models.Capture
	nextSeq  map[uuid.UUID]int64
}

func (f *fakeCaptures) CreateWithSeq(ctx context.Context, gameID uuid.UUID, deviceID *string) (*models.Capture, error) {
	f.nextSeq[gameID]++
	c := &models.Capture{
		ID:             uuid.New(),
		GameID:         gameID,
		Seq:            f.nextSeq[gameID],
		SourceDeviceID: deviceID,
		Status:         models.CaptureCreated,
	}
	f.captures[c.ID] = c
	return c, nil
}

func (f *fakeCaptures) GetCaptureByID(ctx context.Context, id uuid.UUID) (*models.Capture, error) {
	c, ok := f.captures[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCaptures) ListByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Capture, error) {
	var out []*models.Capture
	for _, c := range f.captures {
		if c.GameID == gameID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeJobs struct {
	jobs []*models.Job
}

func (f *fakeJobs) CreateJob(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, jobType models.JobType) (*models.Job, error) {
	j := &models.Job{
		ID:        uuid.New(),
		GameID:    gameID,
		CaptureID: captureID,
		Type:      jobType,
		Status:    models.JobQueued,
		Result:    map[string]interface{}{},
	}
	f.jobs = append(f.jobs, j)
	return j, nil
}

func (f *fakeJobs) ListByCapture(ctx context.Context, captureID uuid.UUID) ([]*models.Job, error) {
	var out []*models.Job
	for _, j := range f.jobs {
		if j.CaptureID != nil && *j.CaptureID == captureID {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeEvents struct {
	events []*models.Event
}

func (f *fakeEvents) Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error) {
	ev := &models.Event{ID: uuid.New(), GameID: gameID, CaptureID: captureID, Type: evType, Actor: actor, Payload: payload}
	f.events = append(f.events, ev)
	return ev, nil
}

type fakePub struct {
	topics   []string
	payloads [][]byte
}

func (f *fakePub) Publish(topic string, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePub) count(topic string) int {
	n := 0
	for _, t := range f.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func newCaptureFixture(t *testing.T, idem *Idempotency) (*CaptureService, *fakeGames, *fakeCaptures, *fakeJobs, *fakePub, uuid.UUID) {
	t.Helper()
	gameID := uuid.New()
	games := &fakeGames{games: map[uuid.UUID]*models.Game{gameID: {ID: gameID, GameType: "chess", Status: models.GameActive}}}
	captures := &fakeCaptures{captures: map[uuid.UUID]*models.Capture{}, nextSeq: map[uuid.UUID]int64{}}
	jobs := &fakeJobs{}
	events := &fakeEvents{}
	pub := &fakePub{}
	svc := NewCaptureService(games, captures, jobs, events, pub, idem)
	return svc, games, captures, jobs, pub, gameID
}

func newTestIdempotency(t *testing.T) *Idempotency {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewIdempotency(rdb)
}

func TestCreateCaptureSpawnsChain(t *testing.T) {
	svc, _, _, jobs, pub, gameID := newCaptureFixture(t, nil)

	capture, spawned, existing, err := svc.CreateCapture(context.Background(), gameID, nil, "")
	if err != nil {
		t.Fatalf("CreateCapture: %v", err)
	}
	if existing {
		t.Fatal("fresh capture reported as replay")
	}
	if capture.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", capture.Seq)
	}
	if len(spawned) != 2 || spawned[0].Type != models.JobVision || spawned[1].Type != models.JobValidate {
		t.Fatalf("expected [VISION VALIDATE] jobs, got %v", spawned)
	}
	for _, j := range jobs.jobs {
		if j.Status != models.JobQueued {
			t.Fatalf("spawned job not QUEUED: %s", j.Status)
		}
	}

	if pub.count(comm.TopicVisionJobs) != 1 {
		t.Fatalf("expected 1 chain enqueue, got %d", pub.count(comm.TopicVisionJobs))
	}
	var chain comm.VisionJobMessage
	if err := json.Unmarshal(pub.payloads[0], &chain); err != nil {
		t.Fatalf("decode chain: %v", err)
	}
	if chain.JobID != spawned[0].ID || chain.ValidateJobID != spawned[1].ID {
		t.Fatal("chain message references the wrong jobs")
	}
}

func TestCreateCaptureSequencesPerGame(t *testing.T) {
	svc, games, _, _, _, gameID := newCaptureFixture(t, nil)
	otherGame := uuid.New()
	games.games[otherGame] = &models.Game{ID: otherGame, GameType: "go", Status: models.GameActive}

	for want := int64(1); want <= 3; want++ {
		c, _, _, err := svc.CreateCapture(context.Background(), gameID, nil, "")
		if err != nil {
			t.Fatalf("CreateCapture: %v", err)
		}
		if c.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, c.Seq)
		}
	}

	c, _, _, err := svc.CreateCapture(context.Background(), otherGame, nil, "")
	if err != nil {
		t.Fatalf("CreateCapture: %v", err)
	}
	if c.Seq != 1 {
		t.Fatalf("other game's sequence must be independent, got %d", c.Seq)
	}
}

func TestCreateCaptureUnknownGame(t *testing.T) {
	svc, _, _, _, pub, _ := newCaptureFixture(t, nil)

	_, _, _, err := svc.CreateCapture(context.Background(), uuid.New(), nil, "")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if len(pub.topics) != 0 {
		t.Fatalf("nothing should be enqueued for an unknown game, got %v", pub.topics)
	}
}

func TestCreateCaptureIdempotentReplay(t *testing.T) {
	idem := newTestIdempotency(t)
	svc, _, _, _, pub, gameID := newCaptureFixture(t, idem)

	first, firstJobs, existing, err := svc.CreateCapture(context.Background(), gameID, nil, "key-1")
	if err != nil || existing {
		t.Fatalf("first create: %v existing=%v", err, existing)
	}

	second, secondJobs, existing, err := svc.CreateCapture(context.Background(), gameID, nil, "key-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !existing {
		t.Fatal("replay not detected")
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different capture: %s vs %s", second.ID, first.ID)
	}
	if len(secondJobs) != len(firstJobs) {
		t.Fatalf("replay job list mismatch: %d vs %d", len(secondJobs), len(firstJobs))
	}
	if pub.count(comm.TopicVisionJobs) != 1 {
		t.Fatalf("replay must not enqueue a second chain, got %d", pub.count(comm.TopicVisionJobs))
	}

	// a different key creates a new capture
	third, _, existing, err := svc.CreateCapture(context.Background(), gameID, nil, "key-2")
	if err != nil || existing {
		t.Fatalf("new key: %v existing=%v", err, existing)
	}
	if third.ID == first.ID {
		t.Fatal("distinct keys must create distinct captures")
	}
}
