// Package pipeline schedules fetch targets onto the worker pool, records
// every outcome in the CSV log and aggregates the counts a run reports.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pzgrab/internal/downloader"
	"pzgrab/pkg/logger"
	"pzgrab/pkg/ratelimit"
	"pzgrab/pkg/report"
)

// ProgressFunc receives per-item completion updates. done counts completed
// targets regardless of success.
type ProgressFunc func(done, total int, label string)

// Options configure a pipeline
type Options struct {
	Workers     int
	Fetch       downloader.FetchOptions
	RateLimiter ratelimit.Limiter
	// OnProgress, when set, is called synchronously after each outcome is
	// logged
	OnProgress ProgressFunc
}

// Summary aggregates one pass over a target set
type Summary struct {
	RunID     string
	Total     int
	Successes int
	Failures  int
	// FailedTargets holds the failing targets in the order their failures
	// were observed, ready for a retry pass
	FailedTargets []downloader.Target
}

// Pipeline runs passes of the fetch–retry–log loop. It may be invoked more
// than once per process; a retry pass over a previous Summary's
// FailedTargets behaves identically to a primary pass.
type Pipeline struct {
	client downloader.ImageFetcher
	store  downloader.FileStore
	log    *report.Log
	opts   Options
	logger logger.Logger
}

// New creates a pipeline
func New(client downloader.ImageFetcher, store downloader.FileStore, outcomeLog *report.Log, opts Options, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Pipeline{
		client: client,
		store:  store,
		log:    outcomeLog,
		opts:   opts,
		logger: log,
	}
}

// Run fetches every target once through the worker pool, appending each
// outcome to the log as it completes. Individual failures never abort the
// pass; the only error returned is a log that cannot be initialized.
func (p *Pipeline) Run(targets []downloader.Target, label string) (*Summary, error) {
	if err := p.log.EnsureInitialized(); err != nil {
		return nil, fmt.Errorf("failed to initialize outcome log: %w", err)
	}

	summary := &Summary{
		RunID: uuid.New().String(),
		Total: len(targets),
	}

	runLog := p.logger.WithField("run_id", summary.RunID)
	runLog.InfoWithFields("starting pass", map[string]interface{}{
		"label":   label,
		"targets": len(targets),
		"workers": p.opts.Workers,
	})

	pool := downloader.NewWorkerPool(
		p.opts.Workers, p.client, p.store, p.opts.Fetch, p.opts.RateLimiter, p.logger,
	)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		done := 0
		for outcome := range pool.Results() {
			if err := p.log.Append(outcome); err != nil {
				// The fetch already happened; losing the row is worth a
				// loud complaint but not an abort
				runLog.ErrorWithFields("failed to append outcome row", map[string]interface{}{
					"url":   outcome.URL,
					"error": err.Error(),
				})
			}

			if outcome.Success {
				summary.Successes++
			} else {
				summary.Failures++
				summary.FailedTargets = append(summary.FailedTargets, downloader.Target{
					URL:     outcome.URL,
					Referer: targetReferer(targets, outcome.URL),
				})
			}

			done++
			if p.opts.OnProgress != nil {
				p.opts.OnProgress(done, summary.Total, label)
			}
		}
	}()

	for _, target := range targets {
		if err := pool.Submit(target); err != nil {
			runLog.ErrorWithFields("failed to submit target", map[string]interface{}{
				"url":   target.URL,
				"error": err.Error(),
			})
		}
	}

	pool.Stop()
	wg.Wait()

	runLog.InfoWithFields("pass complete", map[string]interface{}{
		"label":     label,
		"successes": summary.Successes,
		"failures":  summary.Failures,
	})

	return summary, nil
}

// targetReferer finds the referer originally supplied for a URL so a retry
// pass carries it forward
func targetReferer(targets []downloader.Target, url string) string {
	for _, t := range targets {
		if t.URL == url {
			return t.Referer
		}
	}
	return ""
}
