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

// Allocation reads max(seq)+1 and inserts in two steps, so concurrent
// captures on the same game can collide on uq_captures_game_seq. The
// constraint turns that race into a retry instead of a duplicate.
const maxSeqRetries = 3

type CaptureStore struct {
	db *pgxpool.Pool
}

func NewCaptureStore(db *pgxpool.Pool) *CaptureStore {
	return &CaptureStore{db: db}
}

// CreateWithSeq persists a new capture with the next per-game sequence
// number, retrying on a sequence collision.
func (s *CaptureStore) CreateWithSeq(ctx context.Context, gameID uuid.UUID, deviceID *string) (*models.Capture, error) {
	for attempt := 0; attempt < maxSeqRetries; attempt++ {
		var seq int64
		err := s.db.QueryRow(ctx, `
			SELECT COALESCE(MAX(seq), 0) + 1 FROM captures WHERE game_id = $1
		`, gameID).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate capture seq: %w", err)
		}

		capture := &models.Capture{
			ID:             uuid.New(),
			GameID:         gameID,
			Seq:            seq,
			SourceDeviceID: deviceID,
			Status:         models.CaptureCreated,
		}

		err = s.db.QueryRow(ctx, `
			INSERT INTO captures (id, game_id, seq, source_device_id, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, capture.ID, capture.GameID, capture.Seq, capture.SourceDeviceID, capture.Status).Scan(&capture.CreatedAt)
		if err != nil {
			if isUniqueViolation(err, "uq_captures_game_seq") {
				continue // another capture took this seq, recompute
			}
			return nil, fmt.Errorf("failed to insert capture: %w", err)
		}

		return capture, nil
	}

	return nil, fmt.Errorf("failed to allocate capture seq for game %s after %d attempts", gameID, maxSeqRetries)
}

func (s *CaptureStore) GetCaptureByID(ctx context.Context, captureID uuid.UUID) (*models.Capture, error) {
	capture := &models.Capture{}
	err := s.db.QueryRow(ctx, `
		SELECT id, game_id, seq, created_at, source_device_id, image_path, thumb_path, sha256, status, error
		FROM captures
		WHERE id = $1
	`, captureID).Scan(
		&capture.ID,
		&capture.GameID,
		&capture.Seq,
		&capture.CreatedAt,
		&capture.SourceDeviceID,
		&capture.ImagePath,
		&capture.ThumbPath,
		&capture.SHA256,
		&capture.Status,
		&capture.Error,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get capture by ID: %w", err)
	}

	return capture, nil
}

func (s *CaptureStore) ListByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Capture, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, game_id, seq, created_at, source_device_id, image_path, thumb_path, sha256, status, error
		FROM captures
		WHERE game_id = $1
		ORDER BY seq ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*models.Capture
	for rows.Next() {
		var c models.Capture
		err := rows.Scan(&c.ID, &c.GameID, &c.Seq, &c.CreatedAt, &c.SourceDeviceID,
			&c.ImagePath, &c.ThumbPath, &c.SHA256, &c.Status, &c.Error)
		if err != nil {
			return nil, err
		}
		captures = append(captures, &c)
	}

	return captures, rows.Err()
}

// SetStatus advances the capture status as the job pipeline progresses.
func (s *CaptureStore) SetStatus(ctx context.Context, captureID uuid.UUID, status models.CaptureStatus, errText *string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE captures SET status = $2, error = $3 WHERE id = $1
	`, captureID, status, errText)
	if err != nil {
		return fmt.Errorf("failed to set capture status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStored records where the image landed on disk.
func (s *CaptureStore) SetStored(ctx context.Context, captureID uuid.UUID, imagePath, thumbPath, sha256 *string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE captures SET image_path = $2, thumb_path = $3, sha256 = $4, status = $5
		WHERE id = $1
	`, captureID, imagePath, thumbPath, sha256, models.CaptureStored)
	if err != nil {
		return fmt.Errorf("failed to set capture paths: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
