package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quran-video-service/internal/entity"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// TransitionFields are the optional columns written alongside a state
// change. Zero values leave nothing extra behind except Detail, which is
// always overwritten so stale stage messages never outlive the stage.
type TransitionFields struct {
	Detail        string
	OutputPath    string
	FailureStage  entity.Stage
	FailureDetail string
}

func (r *JobRepository) Create(ctx context.Context, req entity.GenerationRequest) (uuid.UUID, error) {
	const q = `
INSERT INTO jobs (chapter, start_verse, end_verse, narrator, translation, background, output_name, state)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'queued')
RETURNING id;
`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q,
		req.Range.Chapter, req.Range.StartVerse, req.Range.EndVerse,
		req.NarratorID, req.Translation, req.Background, req.OutputName,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, chapter, start_verse, end_verse, narrator, translation, background, output_name,
       state, detail, output_path, failure_stage, failure_detail, cancel_requested,
       created_at, updated_at, started_at, completed_at
FROM jobs
WHERE id = $1;
`
	var (
		job          entity.Job
		stateText    string
		failureStage string
		startedAt    *time.Time
		completedAt  *time.Time
	)

	err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&job.Request.Range.Chapter,
		&job.Request.Range.StartVerse,
		&job.Request.Range.EndVerse,
		&job.Request.NarratorID,
		&job.Request.Translation,
		&job.Request.Background,
		&job.Request.OutputName,
		&stateText,
		&job.Detail,
		&job.OutputPath,
		&failureStage,
		&job.FailureDetail,
		&job.CancelRequested,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.State = entity.JobState(stateText)
	job.FailureStage = entity.Stage(failureStage)
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	return &job, nil
}

// Transition moves a job to a new state. The state-machine guard is part
// of the UPDATE predicate, so a concurrent transition on the same id is
// serialized by the row lock and the loser observes ErrInvalidTransition
// instead of clobbering a terminal record.
func (r *JobRepository) Transition(ctx context.Context, id uuid.UUID, to entity.JobState, fields TransitionFields) error {
	sources := transitionSources(to)
	if len(sources) == 0 {
		return ErrInvalidTransition
	}

	const q = `
UPDATE jobs
SET state = $2,
    detail = $3,
    output_path = CASE WHEN $4 <> '' THEN $4 ELSE output_path END,
    failure_stage = $5,
    failure_detail = $6,
    updated_at = now(),
    started_at = CASE WHEN $2 = 'processing' AND started_at IS NULL THEN now() ELSE started_at END,
    completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END
WHERE id = $1 AND state = ANY($7);
`
	tag, err := r.pool.Exec(ctx, q, id, string(to), fields.Detail,
		fields.OutputPath, string(fields.FailureStage), fields.FailureDetail, sources)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing job from a guarded one.
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

// SetDetail updates the human-readable progress string of a job still in
// processing. It carries no machine semantics and never changes state.
func (r *JobRepository) SetDetail(ctx context.Context, id uuid.UUID, detail string) error {
	const q = `
UPDATE jobs
SET detail = $2, updated_at = now()
WHERE id = $1 AND state = 'processing';
`
	_, err := r.pool.Exec(ctx, q, id, detail)
	return err
}

// RequestCancel flags a non-terminal job for cooperative cancellation.
func (r *JobRepository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs
SET cancel_requested = TRUE, updated_at = now()
WHERE id = $1 AND state IN ('queued', 'processing');
`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *JobRepository) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `SELECT cancel_requested FROM jobs WHERE id = $1;`

	var requested bool
	if err := r.pool.QueryRow(ctx, q, id).Scan(&requested); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return requested, nil
}

// MarkInterrupted fails every job left in processing by a previous run.
// Called once at boot: an in-flight job whose worker died must surface as
// failed, not resume and risk a double render.
func (r *JobRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	const q = `
UPDATE jobs
SET state = 'failed',
    failure_detail = 'interrupted: worker restarted mid-job',
    updated_at = now(),
    completed_at = now()
WHERE state = 'processing';
`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByState returns up to limit job ids in the given state, oldest
// first. Boot uses it to re-seed the queue from durable queued rows.
func (r *JobRepository) ListByState(ctx context.Context, state entity.JobState, limit int) ([]uuid.UUID, error) {
	const q = `
SELECT id FROM jobs
WHERE state = $1
ORDER BY created_at
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTerminalBefore removes terminal jobs older than the cutoff.
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
DELETE FROM jobs
WHERE state IN ('completed', 'failed', 'cancelled') AND updated_at < $1;
`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// transitionSources lists the states a job may be in for a transition to
// the target to be legal, mirroring entity.CanTransition.
func transitionSources(to entity.JobState) []string {
	all := []entity.JobState{
		entity.StateQueued, entity.StateProcessing,
		entity.StateCompleted, entity.StateFailed, entity.StateCancelled,
	}
	var sources []string
	for _, from := range all {
		if entity.CanTransition(from, to) {
			sources = append(sources, string(from))
		}
	}
	return sources
}
