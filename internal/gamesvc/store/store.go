package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx so the same insert
// helpers can run standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

// insertEvent appends one row to the event log. Pure insert, there is
// no update path anywhere for events.
func insertEvent(ctx context.Context, q querier, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	ev := &models.Event{
		ID:        uuid.New(),
		GameID:    gameID,
		CaptureID: captureID,
		Type:      evType,
		Actor:     actor,
		Payload:   payload,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO events (id, game_id, capture_id, type, actor, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, ts
	`, ev.ID, ev.GameID, ev.CaptureID, ev.Type, ev.Actor, ev.Payload).Scan(&ev.Seq, &ev.Ts)
	if err != nil {
		return nil, err
	}
	return ev, nil
}
