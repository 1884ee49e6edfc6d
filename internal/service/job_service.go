package service

import (
	"context"

	"github.com/google/uuid"

	"quran-video-service/internal/entity"
	"quran-video-service/internal/repository/postgresql"
	"quran-video-service/internal/validation"
)

// Repository port (implementation: postgresql.JobRepository)
type JobRepository interface {
	Create(ctx context.Context, req entity.GenerationRequest) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Transition(ctx context.Context, id uuid.UUID, to entity.JobState, fields postgresql.TransitionFields) error
	RequestCancel(ctx context.Context, id uuid.UUID) error
}

// Enqueue-only queue port for submissions.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// JobService accepts generation requests: validates synchronously,
// persists the queued job and hands it to the queue. All pipeline errors
// after this point surface only through the stored job record.
type JobService struct {
	validator *validation.Validator
	repo      JobRepository
	queue     JobQueue
}

func NewJobService(validator *validation.Validator, repo JobRepository, queue JobQueue) *JobService {
	return &JobService{validator: validator, repo: repo, queue: queue}
}

// Submit validates the request and creates a queued job. Validation
// failures come back as *validation.Error and create nothing.
func (s *JobService) Submit(ctx context.Context, req entity.GenerationRequest) (uuid.UUID, error) {
	if _, err := s.validator.Validate(req); err != nil {
		return uuid.Nil, err
	}

	id, err := s.repo.Create(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.queue.Enqueue(ctx, id.String()); err != nil {
		// A queued row nobody will claim is worse than a failed one.
		_ = s.repo.Transition(ctx, id, entity.StateFailed, postgresql.TransitionFields{
			FailureDetail: "enqueue failed: " + err.Error(),
		})
		return uuid.Nil, err
	}

	return id, nil
}

func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// Cancel flags a non-terminal job for cooperative cancellation. The
// orchestrator observes the flag between stages.
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.repo.RequestCancel(ctx, id)
}
