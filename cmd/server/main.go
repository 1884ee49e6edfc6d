// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "quran-video-service/docs"
	"quran-video-service/internal/entity"
	"quran-video-service/internal/gateway"
	"quran-video-service/internal/media"
	"quran-video-service/internal/repository/postgresql"
	"quran-video-service/internal/service"
	httptransport "quran-video-service/internal/transport/http"
	"quran-video-service/internal/validation"
	"quran-video-service/internal/worker"
)

// @title Quran Video Service API
// @version 1.0
// @description Async generation of subtitled verse videos: submit a job, poll its status, fetch the result.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgDSN := mustEnv("POSTGRES_DSN")
	redisAddr := mustEnv("REDIS_ADDR")

	httpAddr := envOr("HTTP_ADDR", ":8080")
	queueKey := envOr("REDIS_QUEUE_KEY", "jobs:queue")
	processingKey := envOr("REDIS_PROCESSING_KEY", "jobs:processing")
	workersCount := envIntOr("WORKERS", 4)

	tempDir := envOr("TEMP_DIR", os.TempDir())
	outputDir := envOr("OUTPUT_DIR", "./output")
	backgroundsDir := envOr("BACKGROUNDS_DIR", "./backgrounds")

	fetchTimeout := time.Duration(envIntOr("FETCH_TIMEOUT_S", 15)) * time.Second
	downloadTimeout := time.Duration(envIntOr("DOWNLOAD_TIMEOUT_S", 60)) * time.Second
	renderTimeout := time.Duration(envIntOr("RENDER_TIMEOUT_S", 600)) * time.Second
	jobTTL := time.Duration(envIntOr("JOB_TTL_H", 72)) * time.Hour

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatalf("output dir: %v", err)
	}

	// Postgres
	pool, err := postgresql.NewPool(ctx, pgDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer pool.Close()

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// DI
	repo := postgresql.NewJobRepository(pool)
	queue := service.NewRedisQueue(rdb, queueKey, processingKey)

	validator := validation.NewValidator(
		validation.DefaultNarrators(),
		validation.DefaultTranslations(),
		validation.DefaultBackgrounds(),
		backgroundsDir,
	)

	gw := gateway.NewClient(gateway.WithTimeouts(fetchTimeout, downloadTimeout))
	assembler := media.NewAssembler()
	renderer := media.NewFFmpegRenderer(media.WithRenderTimeout(renderTimeout))

	jobSvc := service.NewJobService(validator, repo, queue)
	orchestrator := worker.NewOrchestrator(repo, gw, assembler, renderer, validator, tempDir, outputDir)
	workerPool := worker.NewPool(queue, orchestrator, workersCount)

	// Jobs left processing by a previous run never resume; mark them
	// failed up front so pollers see a terminal state.
	if n, err := repo.MarkInterrupted(ctx); err != nil {
		log.Fatalf("mark interrupted: %v", err)
	} else if n > 0 {
		log.Printf("marked %d interrupted jobs failed", n)
	}

	// Re-seed the queue from durable queued rows: Redis may have lost the
	// ids. Double delivery is harmless, the processing transition guard
	// rejects the second claim.
	if ids, err := repo.ListByState(ctx, entity.StateQueued, 1000); err != nil {
		log.Fatalf("list queued: %v", err)
	} else {
		for _, jobID := range ids {
			if err := queue.Enqueue(ctx, jobID.String()); err != nil {
				log.Printf("re-enqueue job_id=%s error=%v", jobID, err)
			}
		}
		if len(ids) > 0 {
			log.Printf("re-enqueued %d queued jobs", len(ids))
		}
	}

	// Reaper: returns claimed-but-unacked ids from processing back to the
	// queue. Re-delivery of an already terminal job is a no-op in the
	// orchestrator.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := queue.RequeueStale(ctx, 100)
				if err != nil {
					log.Printf("requeue error: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("requeued %d jobs from processing", n)
				}
			}
		}
	}()

	// Age-out: terminal job records are kept for JOB_TTL_H, then dropped.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := repo.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-jobTTL))
				if err != nil {
					log.Printf("age-out error: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("aged out %d terminal jobs", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    httpAddr,
		Handler: httptransport.Routes(httptransport.NewHandler(jobSvc)),
	}

	go func() {
		log.Printf("http listening: addr=%s", httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	log.Printf("[server] config workers=%d redis_addr=%s queue_key=%s processing_key=%s output_dir=%s postgres_dsn=%s",
		workersCount, redisAddr, queueKey, processingKey, outputDir, redactDSN(pgDSN),
	)

	workerPool.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	log.Println("server stopped")
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing env: %s", key)
	}
	return v
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func redactDSN(dsn string) string {
	// user:pass@ -> user:****@, leaves DSNs without a password alone
	re := regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)
	return re.ReplaceAllString(dsn, `://$1:****@`)
}
