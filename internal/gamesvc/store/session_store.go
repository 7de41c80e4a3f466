package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(ctx context.Context, gameID *uuid.UUID) (*models.Session, error) {
	sess := &models.Session{
		ID:     uuid.New(),
		GameID: gameID,
		Status: models.SessionOpen,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, game_id, status) VALUES ($1, $2, $3)
		RETURNING created_at
	`, sess.ID, sess.GameID, sess.Status).Scan(&sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	sess := &models.Session{}
	err := s.db.QueryRow(ctx, `
		SELECT id, game_id, status, created_at FROM sessions WHERE id = $1
	`, sessionID).Scan(&sess.ID, &sess.GameID, &sess.Status, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) AddPlay(ctx context.Context, sessionID uuid.UUID, filename string, captureID *uuid.UUID) (*models.Play, error) {
	play := &models.Play{
		ID:        uuid.New(),
		SessionID: sessionID,
		Filename:  filename,
		CaptureID: captureID,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO plays (id, session_id, filename, capture_id)
		VALUES ($1, $2, $3, $4)
	`, play.ID, play.SessionID, play.Filename, play.CaptureID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert play: %w", err)
	}
	return play, nil
}

func (s *SessionStore) ListPlays(ctx context.Context, sessionID uuid.UUID) ([]*models.Play, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, filename, capture_id FROM plays WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plays []*models.Play
	for rows.Next() {
		var p models.Play
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Filename, &p.CaptureID); err != nil {
			return nil, err
		}
		plays = append(plays, &p)
	}
	return plays, rows.Err()
}

// ListArchivable returns sessions marked CLOSING, whose files are no
// longer incoming and are waiting for the archive sweep.
func (s *SessionStore) ListArchivable(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, game_id, status, created_at FROM sessions WHERE status = $1
	`, models.SessionClosing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.GameID, &sess.Status, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) SetStatus(ctx context.Context, sessionID uuid.UUID, status models.SessionStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sessions SET status = $2 WHERE id = $1
	`, sessionID, status)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
