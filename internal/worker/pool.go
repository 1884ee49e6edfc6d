package worker

import (
	"context"
	"log"
	"time"

	"quran-video-service/internal/service"
)

// Processor runs one claimed job to a terminal state.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

type Pool struct {
	queue      service.Queue
	processor  Processor
	workers    int
	claimDelay time.Duration
}

func NewPool(queue service.Queue, processor Processor, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
	}
}

// Run claims job ids and feeds them to N workers until ctx is done. Jobs
// are acked after Process returns: by then the job is terminal in the
// store (or the transition guard will reject a re-run after requeue).
func (p *Pool) Run(ctx context.Context) {
	log.Printf("worker pool started: workers=%d", p.workers)

	jobCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for jobID := range jobCh {
				if err := p.processor.Process(ctx, jobID); err != nil {
					log.Printf("[worker-%d] job_id=%s process error=%v", n, jobID, err)
				}
				if ackErr := p.queue.Ack(ctx, jobID); ackErr != nil {
					log.Printf("[worker-%d] job_id=%s ack error=%v", n, jobID, ackErr)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			log.Println("worker pool stopped")
			return
		default:
			jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// timeout / redis.Nil / ctx cancel
				continue
			}
			select {
			case jobCh <- jobID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}
