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

type JobStore struct {
	db *pgxpool.Pool
}

func NewJobStore(db *pgxpool.Pool) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, game_id, capture_id, type, status, queued_at, started_at, finished_at, attempt, error, result, cancel_requested`

func scanJob(row pgx.Row) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID,
		&job.GameID,
		&job.CaptureID,
		&job.Type,
		&job.Status,
		&job.QueuedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.Attempt,
		&job.Error,
		&job.Result,
		&job.CancelRequested,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *JobStore) CreateJob(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, jobType models.JobType) (*models.Job, error) {
	job := &models.Job{
		ID:        uuid.New(),
		GameID:    gameID,
		CaptureID: captureID,
		Type:      jobType,
		Status:    models.JobQueued,
		Result:    map[string]interface{}{},
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO jobs (id, game_id, capture_id, type, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING queued_at
	`, job.ID, job.GameID, job.CaptureID, job.Type, job.Status).Scan(&job.QueuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return job, nil
}

func (s *JobStore) GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}
	return job, nil
}

func (s *JobStore) ListByCapture(ctx context.Context, captureID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE capture_id = $1 ORDER BY queued_at ASC
	`, captureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkRunning moves the job to RUNNING, stamps the start time and bumps
// the attempt counter. The counter drives nothing, it only records how
// often the job was picked up.
func (s *JobStore) MarkRunning(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET status = $2, started_at = now(), attempt = attempt + 1
		WHERE id = $1
		RETURNING `+jobColumns, jobID, models.JobRunning)
	return scanJob(row)
}

func (s *JobStore) MarkSucceeded(ctx context.Context, jobID uuid.UUID, result map[string]interface{}) (*models.Job, error) {
	if result == nil {
		result = map[string]interface{}{}
	}
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET status = $2, result = $3, finished_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, jobID, models.JobSucceeded, result)
	return scanJob(row)
}

func (s *JobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, errText string) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET status = $2, error = $3, finished_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, jobID, models.JobFailed, errText)
	return scanJob(row)
}

func (s *JobStore) MarkCanceled(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET status = $2, finished_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, jobID, models.JobCanceled)
	return scanJob(row)
}

// RequestCancel sets the advisory cancel flag. A job already in a
// terminal state is returned unchanged; the desired end state (not
// running) already holds, so this is a silent no-op.
func (s *JobStore) RequestCancel(ctx context.Context, jobID uuid.UUID) (*models.Job, bool, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE jobs SET cancel_requested = true
		WHERE id = $1 AND status IN ($2, $3)
		RETURNING `+jobColumns, jobID, models.JobQueued, models.JobRunning)
	job, err := scanJob(row)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to request cancel: %w", err)
	}

	// either absent or already terminal
	job, err = s.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	return job, false, nil
}
