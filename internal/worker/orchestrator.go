package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quran-video-service/internal/entity"
	"quran-video-service/internal/media"
	"quran-video-service/internal/repository/postgresql"
	"quran-video-service/internal/validation"
)

// JobStore is the orchestrator's view of the durable job record.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Transition(ctx context.Context, id uuid.UUID, to entity.JobState, fields postgresql.TransitionFields) error
	SetDetail(ctx context.Context, id uuid.UUID, detail string) error
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

// Gateway wraps the three independent external data fetches.
type Gateway interface {
	FetchVerseData(ctx context.Context, chapter, verse, recitationID int) (entity.VerseData, error)
	FetchTranslation(ctx context.Context, chapter, verse int, editionID string) (string, error)
	FetchAudio(ctx context.Context, sourceRef, destPath string) error
}

type Assembler interface {
	Assemble(ctx context.Context, clips []media.VerseClip, destPath string) (entity.AssembledAudio, error)
}

type Renderer interface {
	Render(ctx context.Context, in media.RenderInput) (string, error)
}

const fetchConcurrency = 4

// Orchestrator drives one job through the pipeline stages: fetch,
// audio_download, assembly, render. A failure in any stage ends the job
// as failed with that stage recorded; every path removes the job's
// temporary directory before the terminal transition is observed by
// pollers of a re-claimed id.
type Orchestrator struct {
	store     JobStore
	gateway   Gateway
	assembler Assembler
	renderer  Renderer
	catalogs  *validation.Validator
	tempDir   string
	outputDir string
}

func NewOrchestrator(store JobStore, gw Gateway, asm Assembler, r Renderer, catalogs *validation.Validator, tempDir, outputDir string) *Orchestrator {
	return &Orchestrator{
		store:     store,
		gateway:   gw,
		assembler: asm,
		renderer:  r,
		catalogs:  catalogs,
		tempDir:   tempDir,
		outputDir: outputDir,
	}
}

func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		log.Printf("[worker] job_id=%s parse_error=%v", jobID, err)
		return err
	}

	err = o.store.Transition(ctx, id, entity.StateProcessing, postgresql.TransitionFields{
		Detail: "pipeline started",
	})
	if err != nil {
		if errors.Is(err, postgresql.ErrInvalidTransition) {
			// Duplicate delivery: the job is terminal or another worker
			// already claimed it. Nothing to do.
			log.Printf("[worker] job_id=%s skipped: not claimable", id)
			return nil
		}
		log.Printf("[worker] job_id=%s transition=processing error=%v", id, err)
		return err
	}

	job, err := o.store.GetByID(ctx, id)
	if err != nil {
		log.Printf("[worker] job_id=%s get_job error=%v", id, err)
		return err
	}
	req := job.Request

	log.Printf("[worker] job_id=%s chapter=%d verses=%d-%d status=processing",
		id, req.Range.Chapter, req.Range.StartVerse, req.Range.EndVerse)

	jobDir := filepath.Join(o.tempDir, "job-"+id.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return o.fail(ctx, id, start, entity.StageAudioDownload, fmt.Sprintf("create temp dir: %v", err))
	}
	// Temporary files are owned by this job alone and never outlive it.
	defer os.RemoveAll(jobDir)

	narrator, ok := o.catalogs.Narrator(req.NarratorID)
	if !ok {
		return o.fail(ctx, id, start, entity.StageFetch, fmt.Sprintf("narrator %q no longer configured", req.NarratorID))
	}
	translation, ok := o.catalogs.Translation(req.Translation)
	if !ok {
		return o.fail(ctx, id, start, entity.StageFetch, fmt.Sprintf("translation %q no longer configured", req.Translation))
	}

	// Stage 1: fetch text, timings and translation for every verse.
	// All-or-nothing: a video missing mid-range narration is worse than
	// no video.
	if done, err := o.checkCancelled(ctx, id, start); done {
		return err
	}
	_ = o.store.SetDetail(ctx, id, "fetching verse data")

	verses, err := o.fetchVerses(ctx, req.Range, narrator.RecitationID, translation.EditionID)
	if err != nil {
		return o.fail(ctx, id, start, entity.StageFetch, err.Error())
	}

	// Stage 2: download each verse's narration clip into the job dir.
	if done, err := o.checkCancelled(ctx, id, start); done {
		return err
	}
	_ = o.store.SetDetail(ctx, id, "downloading narration audio")

	clips, err := o.downloadAudio(ctx, req.Range.Chapter, verses, jobDir)
	if err != nil {
		return o.fail(ctx, id, start, entity.StageAudioDownload, err.Error())
	}

	// Stage 3: concatenate clips in verse order.
	if done, err := o.checkCancelled(ctx, id, start); done {
		return err
	}
	_ = o.store.SetDetail(ctx, id, "assembling audio track")

	assembled, err := o.assembler.Assemble(ctx, clips, filepath.Join(jobDir, "narration.mp3"))
	if err != nil {
		return o.fail(ctx, id, start, entity.StageAssembly, err.Error())
	}

	// Stage 4: render.
	if done, err := o.checkCancelled(ctx, id, start); done {
		return err
	}
	_ = o.store.SetDetail(ctx, id, "rendering video")

	backgroundPath, ok := o.catalogs.BackgroundPath(req.Background)
	if !ok {
		return o.fail(ctx, id, start, entity.StageRender, fmt.Sprintf("background %q no longer configured", req.Background))
	}

	outputPath, err := o.renderer.Render(ctx, media.RenderInput{
		Verses:         verses,
		Audio:          assembled,
		BackgroundPath: backgroundPath,
		OutputPath:     filepath.Join(o.outputDir, o.outputName(req, id)+".mp4"),
	})
	if err != nil {
		return o.fail(ctx, id, start, entity.StageRender, err.Error())
	}

	err = o.store.Transition(ctx, id, entity.StateCompleted, postgresql.TransitionFields{
		Detail:     "video ready",
		OutputPath: outputPath,
	})
	if err != nil {
		log.Printf("[worker] job_id=%s transition=completed error=%v", id, err)
		return err
	}

	log.Printf("[worker] job_id=%s status=completed duration_ms=%d output=%s",
		id, time.Since(start).Milliseconds(), outputPath)
	return nil
}

// fetchVerses fans out over the range, fetching verse data and the
// translation per verse concurrently. The first failure aborts the group.
func (o *Orchestrator) fetchVerses(ctx context.Context, r entity.VerseRange, recitationID int, editionID string) ([]entity.VerseData, error) {
	count := r.EndVerse - r.StartVerse + 1
	verses := make([]entity.VerseData, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i := 0; i < count; i++ {
		g.Go(func() error {
			verse := r.StartVerse + i

			vd, err := o.gateway.FetchVerseData(gctx, r.Chapter, verse, recitationID)
			if err != nil {
				return fmt.Errorf("verse %d:%d: %w", r.Chapter, verse, err)
			}
			text, err := o.gateway.FetchTranslation(gctx, r.Chapter, verse, editionID)
			if err != nil {
				return fmt.Errorf("verse %d:%d: %w", r.Chapter, verse, err)
			}
			vd.Translation = text
			verses[i] = vd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verses, nil
}

// downloadAudio fetches each verse's clip into the job-scoped directory.
// Returned clips are in verse order regardless of download completion
// order.
func (o *Orchestrator) downloadAudio(ctx context.Context, chapter int, verses []entity.VerseData, jobDir string) ([]media.VerseClip, error) {
	clips := make([]media.VerseClip, len(verses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, vd := range verses {
		g.Go(func() error {
			dest := filepath.Join(jobDir, fmt.Sprintf("verse-%03d.mp3", vd.VerseNumber))
			if err := o.gateway.FetchAudio(gctx, vd.AudioSourceRef, dest); err != nil {
				return fmt.Errorf("verse %d:%d: %w", chapter, vd.VerseNumber, err)
			}
			clips[i] = media.VerseClip{VerseNumber: vd.VerseNumber, Path: dest}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

// checkCancelled is the cooperative cancellation point between stages.
// done=true means the job reached a terminal state here.
func (o *Orchestrator) checkCancelled(ctx context.Context, id uuid.UUID, start time.Time) (bool, error) {
	requested, err := o.store.CancelRequested(ctx, id)
	if err != nil {
		return false, nil // store hiccup: keep going, the next check retries
	}
	if !requested {
		return false, nil
	}

	err = o.store.Transition(ctx, id, entity.StateCancelled, postgresql.TransitionFields{
		Detail: "cancelled by caller",
	})
	if err != nil {
		log.Printf("[worker] job_id=%s transition=cancelled error=%v", id, err)
		return true, err
	}
	log.Printf("[worker] job_id=%s status=cancelled duration_ms=%d", id, time.Since(start).Milliseconds())
	return true, nil
}

func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, start time.Time, stage entity.Stage, detail string) error {
	err := o.store.Transition(ctx, id, entity.StateFailed, postgresql.TransitionFields{
		Detail:        "pipeline failed",
		FailureStage:  stage,
		FailureDetail: detail,
	})
	if err != nil {
		log.Printf("[worker] job_id=%s transition=failed error=%v", id, err)
		return err
	}
	log.Printf("[worker] job_id=%s status=failed stage=%s duration_ms=%d error=%s",
		id, stage, time.Since(start).Milliseconds(), detail)
	return nil
}

// outputName keeps a caller-supplied name (already validated) or derives
// one from the range and the job id.
func (o *Orchestrator) outputName(req entity.GenerationRequest, id uuid.UUID) string {
	if req.OutputName != "" {
		return req.OutputName
	}
	return fmt.Sprintf("S%d_A%d-%d_%s",
		req.Range.Chapter, req.Range.StartVerse, req.Range.EndVerse, id.String()[:8])
}
