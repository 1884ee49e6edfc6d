package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"quran-video-service/internal/entity"
	"quran-video-service/internal/repository/postgresql"
	"quran-video-service/internal/service"
	"quran-video-service/internal/validation"
)

type fakeRepo struct {
	createCalled int
	lastRequest  entity.GenerationRequest
	createID     uuid.UUID
	createErr    error

	transitions []entity.JobState
	lastFields  postgresql.TransitionFields
}

func (r *fakeRepo) Create(ctx context.Context, req entity.GenerationRequest) (uuid.UUID, error) {
	r.createCalled++
	r.lastRequest = req
	if r.createErr != nil {
		return uuid.Nil, r.createErr
	}
	return r.createID, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return nil, postgresql.ErrNotFound
}

func (r *fakeRepo) Transition(ctx context.Context, id uuid.UUID, to entity.JobState, fields postgresql.TransitionFields) error {
	r.transitions = append(r.transitions, to)
	r.lastFields = fields
	return nil
}

func (r *fakeRepo) RequestCancel(ctx context.Context, id uuid.UUID) error { return nil }

type fakeQueue struct {
	enqueuedIDs []string
	enqueueErr  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID string) error {
	q.enqueuedIDs = append(q.enqueuedIDs, jobID)
	return q.enqueueErr
}

func newTestValidator(t *testing.T) *validation.Validator {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"nature.mp4", "calm_image.jpeg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return validation.NewValidator(
		validation.DefaultNarrators(),
		validation.DefaultTranslations(),
		validation.DefaultBackgrounds(),
		dir,
	)
}

func validRequest() entity.GenerationRequest {
	return entity.GenerationRequest{
		Range:       entity.VerseRange{Chapter: 1, StartVerse: 1, EndVerse: 7},
		NarratorID:  "mishary_alafasy",
		Translation: "en_sahih",
		Background:  "nature_video",
	}
}

func TestSubmit_CreatesAndEnqueues(t *testing.T) {
	ctx := context.Background()
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	repo := &fakeRepo{createID: id}
	queue := &fakeQueue{}
	svc := service.NewJobService(newTestValidator(t), repo, queue)

	got, err := svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != id {
		t.Fatalf("expected id %s, got %s", id, got)
	}
	if repo.createCalled != 1 {
		t.Fatalf("expected 1 create call, got %d", repo.createCalled)
	}
	if len(queue.enqueuedIDs) != 1 || queue.enqueuedIDs[0] != id.String() {
		t.Fatalf("expected enqueue of %s, got %#v", id, queue.enqueuedIDs)
	}
}

func TestSubmit_ValidationFailureCreatesNothing(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	queue := &fakeQueue{}
	svc := service.NewJobService(newTestValidator(t), repo, queue)

	req := validRequest()
	req.Range.EndVerse = 999

	_, err := svc.Submit(ctx, req)
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validation.Error, got %v", err)
	}
	if verr.Kind != validation.KindInvalidVerseRange {
		t.Fatalf("expected invalid_verse_range, got %s", verr.Kind)
	}
	if repo.createCalled != 0 {
		t.Fatalf("expected no create calls, got %d", repo.createCalled)
	}
	if len(queue.enqueuedIDs) != 0 {
		t.Fatalf("expected no enqueues, got %#v", queue.enqueuedIDs)
	}
}

func TestSubmit_EnqueueFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	repo := &fakeRepo{createID: id}
	queue := &fakeQueue{enqueueErr: errors.New("redis down")}
	svc := service.NewJobService(newTestValidator(t), repo, queue)

	_, err := svc.Submit(ctx, validRequest())
	if err == nil {
		t.Fatal("expected error from enqueue failure")
	}
	if len(repo.transitions) != 1 || repo.transitions[0] != entity.StateFailed {
		t.Fatalf("expected job marked failed, got %#v", repo.transitions)
	}
	if repo.lastFields.FailureDetail == "" {
		t.Fatal("expected failure detail to mention the enqueue error")
	}
}
