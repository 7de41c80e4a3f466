package db

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var DB *pgxpool.Pool

// Connect initializes the connection pool
func Connect() (*pgxpool.Pool, error) {
	dsn := os.Getenv("POSTGRES_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	// Try pinging to make sure it's valid
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	DB = pool

	return pool, nil
}

// ClosePool is for graceful shutdown
func ClosePool() {
	if DB != nil {
		DB.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		game_type VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		id UUID PRIMARY KEY,
		game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		name VARCHAR(64) NOT NULL,
		color VARCHAR(32),
		seat INT,
		metadata JSONB NOT NULL DEFAULT '{}',
		CONSTRAINT uq_players_game_seat UNIQUE (game_id, seat)
	)`,
	`CREATE TABLE IF NOT EXISTS captures (
		id UUID PRIMARY KEY,
		game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		source_device_id VARCHAR(128),
		image_path TEXT,
		thumb_path TEXT,
		sha256 VARCHAR(64),
		status VARCHAR(16) NOT NULL DEFAULT 'CREATED',
		error TEXT,
		CONSTRAINT uq_captures_game_seq UNIQUE (game_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		capture_id UUID REFERENCES captures(id) ON DELETE CASCADE,
		type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'QUEUED',
		queued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		attempt INT NOT NULL DEFAULT 0,
		error TEXT,
		result JSONB NOT NULL DEFAULT '{}',
		cancel_requested BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id UUID NOT NULL,
		seq BIGSERIAL PRIMARY KEY,
		game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		capture_id UUID REFERENCES captures(id) ON DELETE SET NULL,
		type VARCHAR(64) NOT NULL,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		actor VARCHAR(64) NOT NULL DEFAULT 'system',
		payload JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_game_ts ON events (game_id, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_events_game_seq ON events (game_id, seq)`,
	`CREATE TABLE IF NOT EXISTS state_snapshots (
		game_id UUID PRIMARY KEY REFERENCES games(id) ON DELETE CASCADE,
		version BIGINT NOT NULL DEFAULT 0,
		computed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		state JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		game_id UUID REFERENCES games(id) ON DELETE SET NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'OPEN',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS plays (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		capture_id UUID REFERENCES captures(id) ON DELETE SET NULL
	)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
