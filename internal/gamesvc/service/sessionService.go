package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

type SessionService struct {
	sessions *store.SessionStore
	pub      publisher
}

func NewSessionService(sessions *store.SessionStore, pub publisher) *SessionService {
	return &SessionService{sessions: sessions, pub: pub}
}

func (s *SessionService) CreateSession(ctx context.Context, gameID *uuid.UUID) (*models.Session, error) {
	return s.sessions.CreateSession(ctx, gameID)
}

func (s *SessionService) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.sessions.GetSessionByID(ctx, sessionID)
}

func (s *SessionService) AddPlay(ctx context.Context, sessionID uuid.UUID, filename string, captureID *uuid.UUID) (*models.Play, error) {
	sess, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionOpen {
		return nil, store.ErrConflict
	}
	return s.sessions.AddPlay(ctx, sessionID, filename, captureID)
}

func (s *SessionService) ListPlays(ctx context.Context, sessionID uuid.UUID) ([]*models.Play, error) {
	if _, err := s.sessions.GetSessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.ListPlays(ctx, sessionID)
}

// RequestArchive closes the session for new plays and enqueues the
// archive job. Requesting archival of an ARCHIVED session is a no-op;
// the archive worker itself is also safe to rerun.
func (s *SessionService) RequestArchive(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	sess, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionArchived {
		return sess, nil
	}

	if sess.Status == models.SessionOpen {
		if err := s.sessions.SetStatus(ctx, sessionID, models.SessionClosing); err != nil {
			return nil, err
		}
		sess.Status = models.SessionClosing
	}

	body, err := json.Marshal(comm.ArchiveSessionMessage{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(comm.TopicArchiveJobs, body); err != nil {
		return nil, fmt.Errorf("failed to enqueue archive job: %w", err)
	}
	return sess, nil
}
