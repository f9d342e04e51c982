// Package dispatcher fans candidate URLs out over a bounded permit pool,
// retrying each one with backoff and ticking progress exactly once per URL.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/subharvest/internal/progress"
	"github.com/JakeFAU/subharvest/internal/retry"
)

// DefaultConcurrency is the permit pool size when none is configured.
const DefaultConcurrency = 32

// Result describes how a candidate finished.
type Result struct {
	Outcome progress.Outcome
	Kind    string
}

// Work processes one candidate. A non-nil error triggers another attempt.
type Work func(ctx context.Context, rawURL string) (Result, error)

// Config controls pool size, retries, and progress rendering.
type Config struct {
	Concurrency int
	Retry       retry.Policy
	RunID       [16]byte
	// BarWriter, when set, renders a progress bar there.
	BarWriter io.Writer
}

// Stats summarizes a RunAll call.
type Stats struct {
	Total      int
	Done       int64
	Classified int64
	Unmatched  int64
	Failed     int64
}

// Dispatcher runs Work over candidate sets.
type Dispatcher struct {
	cfg     Config
	emitter progress.Emitter
	logger  *zap.Logger
}

// New creates a Dispatcher. emitter may be nil.
func New(cfg Config, emitter progress.Emitter, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, emitter: emitter, logger: logger.Named("dispatcher")}
}

// RunAll processes every URL and returns once all of them have finished.
// Acquiring a permit blocks until one is free. Only cancellation of ctx ends
// the run early, in which case the context error is returned.
func (d *Dispatcher) RunAll(ctx context.Context, urls []string, work Work) (Stats, error) {
	stats := Stats{Total: len(urls)}
	var counter *progress.Counter
	if d.cfg.BarWriter != nil && len(urls) > 0 {
		counter = progress.NewBarCounter(len(urls), d.cfg.BarWriter)
	} else {
		counter = progress.NewCounter(len(urls))
	}
	defer counter.Finish()

	var (
		sem                           = semaphore.NewWeighted(int64(d.cfg.Concurrency))
		wg                            sync.WaitGroup
		classified, unmatched, failed atomic.Int64
		acquireErr                    error
	)
	for _, raw := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			defer sem.Release(1)

			res, attempts, err := d.runOne(ctx, raw, work)
			if err != nil {
				res = Result{Outcome: progress.OutcomeFailed}
				d.logger.Debug("candidate abandoned",
					zap.String("url", raw),
					zap.Int("attempts", attempts),
					zap.Error(err))
			}
			switch res.Outcome {
			case progress.OutcomeClassified:
				classified.Add(1)
			case progress.OutcomeFailed:
				failed.Add(1)
			default:
				res.Outcome = progress.OutcomeUnmatched
				unmatched.Add(1)
			}
			counter.Tick()
			d.emit(progress.Event{
				Stage:    progress.StageCandidateDone,
				URL:      raw,
				Site:     Site(raw),
				Outcome:  res.Outcome,
				Kind:     res.Kind,
				Attempts: attempts,
			})
		}(raw)
	}
	wg.Wait()

	stats.Done = counter.Done()
	stats.Classified = classified.Load()
	stats.Unmatched = unmatched.Load()
	stats.Failed = failed.Load()
	if acquireErr != nil {
		return stats, fmt.Errorf("acquire permit: %w", acquireErr)
	}
	return stats, nil
}

func (d *Dispatcher) runOne(ctx context.Context, raw string, work Work) (Result, int, error) {
	var (
		res      Result
		attempts int
	)
	policy := d.cfg.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		d.logger.Debug("retrying candidate",
			zap.String("url", raw),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		attempts = attempt
		r, err := work(ctx, raw)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return Result{}, attempts, fmt.Errorf("candidate canceled: %w", ctx.Err())
	}
	return res, attempts, err
}

func (d *Dispatcher) emit(evt progress.Event) {
	if d.emitter == nil {
		return
	}
	evt.RunID = d.cfg.RunID
	evt.TS = time.Now().UTC()
	d.emitter.Emit(evt)
}

// Site returns the lowercase host of rawURL, or "unknown".
func Site(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
