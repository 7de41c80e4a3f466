package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/safefs"
)

type fakeSessions struct {
	sessions map[uuid.UUID]*models.Session
	plays    map[uuid.UUID][]*models.Play
}

func (f *fakeSessions) GetSessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return s, nil
}

func (f *fakeSessions) ListPlays(ctx context.Context, id uuid.UUID) ([]*models.Play, error) {
	return f.plays[id], nil
}

func (f *fakeSessions) ListArchivable(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range f.sessions {
		if s.Status == models.SessionClosing {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) SetStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	f.sessions[id].Status = status
	return nil
}

type fakeEvents struct {
	events []*models.Event
}

func (f *fakeEvents) Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error) {
	ev := &models.Event{ID: uuid.New(), GameID: gameID, Type: evType, Actor: actor, Payload: payload}
	f.events = append(f.events, ev)
	return ev, nil
}

type fakePub struct {
	topics [][2]string
}

func (f *fakePub) Publish(topic string, payload []byte) error {
	f.topics = append(f.topics, [2]string{topic, string(payload)})
	return nil
}

func newFixture(t *testing.T, filenames []string) (*Archiver, *fakeSessions, *fakeEvents, string, uuid.UUID) {
	t.Helper()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, incomingDir), 0o755); err != nil {
		t.Fatalf("mkdir incoming: %v", err)
	}

	gameID := uuid.New()
	sessionID := uuid.New()
	sessions := &fakeSessions{
		sessions: map[uuid.UUID]*models.Session{
			sessionID: {ID: sessionID, GameID: &gameID, Status: models.SessionClosing},
		},
		plays: map[uuid.UUID][]*models.Play{},
	}
	for _, name := range filenames {
		sessions.plays[sessionID] = append(sessions.plays[sessionID], &models.Play{
			ID: uuid.New(), SessionID: sessionID, Filename: name,
		})
		if err := os.WriteFile(filepath.Join(root, incomingDir, name), []byte("frame "+name), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	fs, err := safefs.New(root)
	if err != nil {
		t.Fatalf("safefs: %v", err)
	}
	events := &fakeEvents{}
	arch := New(sessions, events, fs, &fakePub{})
	return arch, sessions, events, root, sessionID
}

func TestArchiveSessionMovesAllFiles(t *testing.T) {
	arch, sessions, events, root, sessionID := newFixture(t, []string{"a.jpg", "b.jpg"})

	report, err := arch.ArchiveSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	if len(report.Archived) != 2 || len(report.Failed) != 0 {
		t.Fatalf("expected 2 archived 0 failed, got %d/%d", len(report.Archived), len(report.Failed))
	}
	for _, name := range []string{"a.jpg", "b.jpg"} {
		dst := filepath.Join(root, archiveDir, sessionID.String(), name)
		if _, err := os.Stat(dst); err != nil {
			t.Fatalf("archived file missing: %v", err)
		}
		src := filepath.Join(root, incomingDir, name)
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Fatalf("source %s still present after move", name)
		}
	}
	if sessions.sessions[sessionID].Status != models.SessionArchived {
		t.Fatalf("session not ARCHIVED: %s", sessions.sessions[sessionID].Status)
	}
	if len(events.events) != 1 || events.events[0].Type != models.EventSessionArchived {
		t.Fatalf("expected one SESSION_ARCHIVED event, got %v", events.events)
	}
}

func TestArchiveSessionContinuesPastMissingFile(t *testing.T) {
	arch, sessions, events, root, sessionID := newFixture(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"})
	if err := os.Remove(filepath.Join(root, incomingDir, "b.jpg")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	report, err := arch.ArchiveSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	if len(report.Archived) != 4 {
		t.Fatalf("surviving files should still archive, got %d", len(report.Archived))
	}
	if len(report.Failed) != 1 || report.Failed[0].Filename != "b.jpg" {
		t.Fatalf("expected b.jpg in failed list, got %v", report.Failed)
	}

	// partial run: stays CLOSING for the next sweep, no event yet
	if sessions.sessions[sessionID].Status != models.SessionClosing {
		t.Fatalf("partial archive must not mark session ARCHIVED")
	}
	if len(events.events) != 0 {
		t.Fatalf("no event expected for a partial run, got %v", events.events)
	}
}

func TestArchiveSessionRetryPicksUpLeftovers(t *testing.T) {
	arch, sessions, _, root, sessionID := newFixture(t, []string{"a.jpg", "b.jpg"})
	if err := os.Remove(filepath.Join(root, incomingDir, "b.jpg")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := arch.ArchiveSession(context.Background(), sessionID); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// the missing file shows up again, e.g. the uploader retried
	if err := os.WriteFile(filepath.Join(root, incomingDir, "b.jpg"), []byte("frame b"), 0o644); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	report, err := arch.ArchiveSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("second pass should succeed, failed: %v", report.Failed)
	}
	// a.jpg was already moved; the retry must not treat that as an error
	var strategies []string
	for _, f := range report.Archived {
		strategies = append(strategies, f.Strategy)
	}
	if len(report.Archived) != 2 {
		t.Fatalf("expected both files accounted for, got %v", strategies)
	}
	if sessions.sessions[sessionID].Status != models.SessionArchived {
		t.Fatal("session should be ARCHIVED after the retry")
	}
}

func TestArchiveSessionArchivedIsNoop(t *testing.T) {
	arch, sessions, _, _, sessionID := newFixture(t, []string{"a.jpg"})
	sessions.sessions[sessionID].Status = models.SessionArchived

	report, err := arch.ArchiveSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	if len(report.Archived) != 0 && len(report.Failed) != 0 {
		t.Fatalf("archived session should be a no-op, got %+v", report)
	}
}

func TestSweepEnqueuesClosingSessions(t *testing.T) {
	arch, sessions, _, _, sessionID := newFixture(t, nil)
	other := uuid.New()
	sessions.sessions[other] = &models.Session{ID: other, Status: models.SessionOpen}

	pub := &fakePub{}
	arch.pub = pub
	if err := arch.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(pub.topics) != 1 {
		t.Fatalf("expected 1 enqueue (only the CLOSING session), got %d", len(pub.topics))
	}
	if pub.topics[0][0] != "jobs.archive" {
		t.Fatalf("wrong topic %s", pub.topics[0][0])
	}
	if !strings.Contains(pub.topics[0][1], sessionID.String()) {
		t.Fatalf("enqueued message does not name the session: %s", pub.topics[0][1])
	}
}
