package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

// Append inserts one event. Events are never updated or deleted except
// by cascading game deletion.
func (s *EventStore) Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error) {
	ev, err := insertEvent(ctx, s.db, gameID, captureID, evType, actor, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	return ev, nil
}

// ListAfter returns events for a game with seq greater than the cursor,
// in seq order, capped at limit. Cursor 0 reads from the beginning.
func (s *EventStore) ListAfter(ctx context.Context, gameID uuid.UUID, after int64, limit int) ([]*models.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, seq, game_id, capture_id, type, ts, actor, payload
		FROM events
		WHERE game_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, gameID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		err := rows.Scan(&ev.ID, &ev.Seq, &ev.GameID, &ev.CaptureID, &ev.Type, &ev.Ts, &ev.Actor, &ev.Payload)
		if err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}

	return events, rows.Err()
}
