package service

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
)

type JobService struct {
	jobStore   *store.JobStore
	eventStore *store.EventStore
}

func NewJobService(jobStore *store.JobStore, eventStore *store.EventStore) *JobService {
	return &JobService{jobStore: jobStore, eventStore: eventStore}
}

func (s *JobService) GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.jobStore.GetJobByID(ctx, jobID)
}

// RequestCancel sets the advisory cancel flag. Cancellation is honored
// only at the job's start boundary; a running job finishes regardless.
// Terminal jobs are returned unchanged.
func (s *JobService) RequestCancel(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, changed, err := s.jobStore.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if changed {
		_, err = s.eventStore.Append(ctx, job.GameID, job.CaptureID, models.EventJobCancelRequested, "system",
			map[string]interface{}{"job_id": job.ID.String()})
		if err != nil {
			log.Errorf("Error appending cancel event %s", err)
		}
	}
	return job, nil
}
