package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/subharvest/internal/progress"
	"github.com/JakeFAU/subharvest/internal/retry"
)

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2}
}

func candidates(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://host%d.example.com/sub", i)
	}
	return out
}

func TestRunAllBoundsInFlight(t *testing.T) {
	t.Parallel()

	const capacity = 4
	var inFlight, peak atomic.Int64
	d := New(Config{Concurrency: capacity, Retry: fastRetry(1)}, nil, zap.NewNop())

	stats, err := d.RunAll(context.Background(), candidates(40), func(context.Context, string) (Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Result{Outcome: progress.OutcomeUnmatched}, nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int64(capacity))
	require.Positive(t, peak.Load())
	require.Equal(t, int64(40), stats.Done)
}

func TestRunAllProgressCountsEveryCandidate(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	runID := progress.UUIDToBytes(uuid.New())
	d := New(Config{Concurrency: 3, Retry: fastRetry(2), RunID: runID}, emitter, zap.NewNop())

	urls := candidates(12)
	stats, err := d.RunAll(context.Background(), urls, func(_ context.Context, raw string) (Result, error) {
		switch raw[len("https://host"):][0] {
		case '0', '1', '2':
			return Result{}, errors.New("connection refused")
		case '3', '4':
			return Result{Outcome: progress.OutcomeClassified, Kind: "clash"}, nil
		default:
			return Result{}, nil
		}
	})
	require.NoError(t, err)
	require.Equal(t, int64(len(urls)), stats.Done)
	require.Equal(t, int64(len(urls)), stats.Classified+stats.Unmatched+stats.Failed)
	// host0..host2 and host10, host11 fail; host3, host4 classify.
	require.Equal(t, int64(5), stats.Failed)
	require.Equal(t, int64(2), stats.Classified)

	events := emitter.Events()
	require.Len(t, events, len(urls))
	seen := map[string]int{}
	for _, evt := range events {
		require.Equal(t, progress.StageCandidateDone, evt.Stage)
		require.NoError(t, evt.Validate())
		require.Equal(t, runID, evt.RunID)
		seen[evt.URL]++
	}
	for _, raw := range urls {
		require.Equal(t, 1, seen[raw], raw)
	}
}

func TestRunAllRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	d := New(Config{Concurrency: 1, Retry: fastRetry(3)}, nil, zap.NewNop())
	stats, err := d.RunAll(context.Background(), []string{"https://flaky.example.com"}, func(context.Context, string) (Result, error) {
		if calls.Add(1) < 3 {
			return Result{}, errors.New("timeout")
		}
		return Result{Outcome: progress.OutcomeClassified, Kind: "v2"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, int64(1), stats.Classified)
}

func TestRunAllEmpty(t *testing.T) {
	t.Parallel()

	d := New(Config{}, nil, nil)
	stats, err := d.RunAll(context.Background(), nil, func(context.Context, string) (Result, error) {
		t.Fatal("work must not be called")
		return Result{}, nil
	})
	require.NoError(t, err)
	require.Zero(t, stats.Done)
}

func TestRunAllCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	d := New(Config{Concurrency: 1, Retry: fastRetry(1)}, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := d.RunAll(ctx, candidates(3), func(context.Context, string) (Result, error) {
			<-release
			return Result{}, nil
		})
		done <- err
	}()
	cancel()
	close(release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunAll did not return after cancel")
	}
}

func TestSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "sub.example.com", Site("https://SUB.example.com:8443/a?b=c"))
	require.Equal(t, "unknown", Site("not a url"))
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
