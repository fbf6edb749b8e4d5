package downloader

import (
	"context"
	"fmt"
	"sync"

	"pzgrab/pkg/logger"
	"pzgrab/pkg/ratelimit"
	"pzgrab/pkg/report"
)

// WorkerPool fans targets out across a bounded set of fetch workers.
// Outcomes arrive on Results in completion order, not submission order.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Target
	resultQueue chan report.Outcome
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      ImageFetcher
	store       FileStore
	opts        FetchOptions
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a download worker pool. numWorkers is clamped to
// at least one.
func NewWorkerPool(
	numWorkers int,
	client ImageFetcher,
	store FileStore,
	opts FetchOptions,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.PerMinute(0)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Target, numWorkers*2),
		resultQueue: make(chan report.Outcome, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		store:       store,
		opts:        opts,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for in-flight work to drain, then
// closes the result queue
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit queues one target
func (wp *WorkerPool) Submit(target Target) error {
	select {
	case wp.jobQueue <- target:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the channel of completed outcomes
func (wp *WorkerPool) Results() <-chan report.Outcome {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for target := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		if !wp.rateLimiter.Allow() {
			wp.logger.DebugWithFields("worker waiting for rate limit", map[string]interface{}{
				"worker_id": id,
				"url":       target.URL,
			})
			wp.rateLimiter.Wait()
		}

		outcome := fetchOne(wp.ctx, wp.client, wp.store, target, wp.opts, wp.logger)

		wp.logger.DebugWithFields("worker finished target", map[string]interface{}{
			"worker_id": id,
			"url":       target.URL,
			"success":   outcome.Success,
			"attempts":  outcome.Attempts,
		})

		select {
		case wp.resultQueue <- outcome:
		case <-wp.ctx.Done():
			return
		}
	}
}
