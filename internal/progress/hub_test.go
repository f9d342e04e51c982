package progress

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(candidateEvent(OutcomeClassified))
	hub.Emit(candidateEvent(OutcomeFailed))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesAfterWait(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(candidateEvent(OutcomeUnmatched))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitDoesNotBlockWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	hub.Emit(candidateEvent(OutcomeFailed))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(0), hub.dropped.Load(), "drop counter is swapped out on first warning")
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)
	hub.Emit(candidateEvent(OutcomeClassified))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.True(t, sink.closed)

	hub.Emit(candidateEvent(OutcomeClassified))
	require.Len(t, sink.Batches(), 1)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{}, sink)
	hub.Emit(Event{Stage: StageCandidateDone})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(candidateEvent(OutcomeClassified))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "run start", evt: Event{RunID: id, TS: now, Stage: StageRunStart}},
		{name: "missing run", evt: Event{TS: now, Stage: StageRunStart}, wantErr: "run id"},
		{name: "missing ts", evt: Event{RunID: id, Stage: StageRunStart}, wantErr: "timestamp"},
		{name: "fetch without site", evt: Event{RunID: id, TS: now, Stage: StageFetchDone, StatusClass: Status2xx}, wantErr: "site"},
		{name: "fetch without status", evt: Event{RunID: id, TS: now, Stage: StageFetchDone, Site: "a"}, wantErr: "status class"},
		{name: "candidate without outcome", evt: Event{RunID: id, TS: now, Stage: StageCandidateDone}, wantErr: "outcome"},
		{name: "unknown stage", evt: Event{RunID: id, TS: now, Stage: "NOPE"}, wantErr: "unknown stage"},
		{name: "negative duration", evt: Event{RunID: id, TS: now, Stage: StageRunDone, Dur: -1}, wantErr: "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusError, ClassifyStatus(0))
	require.Equal(t, Status2xx, ClassifyStatus(204))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(99))
}

func TestCounterTicks(t *testing.T) {
	t.Parallel()

	c := NewCounter(50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Tick()
		}()
	}
	wg.Wait()
	c.Finish()
	require.Equal(t, int64(50), c.Done())
	require.Equal(t, c.Total(), c.Done())
}

func TestBarCounterWritesToWriter(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	c := NewBarCounter(2, &buf)
	c.Tick()
	c.Tick()
	c.Finish()
	require.Equal(t, int64(2), c.Done())
	require.Contains(t, buf.String(), "2 / 2")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func candidateEvent(outcome Outcome) Event {
	return Event{
		RunID:   UUIDToBytes(uuid.New()),
		TS:      time.Now(),
		Stage:   StageCandidateDone,
		URL:     "https://sub.example.com/link",
		Outcome: outcome,
	}
}
