package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/subharvest/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("sub.example.com", "2xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("down.example.com", "error")), 1e-9)
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("sub.example.com")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.candidates.WithLabelValues("classified")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.candidates.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.records.WithLabelValues("clash")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "subharvest_run_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t, 2, logs.FilterMessage("progress event").FilterLevelExact(zap.InfoLevel).Len())
	require.Equal(t, 4, logs.FilterMessage("progress event").FilterLevelExact(zap.DebugLevel).Len())
	require.Equal(t, 1, logs.FilterField(zap.String("outcome", "classified")).Len())
}

func sampleBatch() []progress.Event {
	run := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	return []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageRunStart},
		{
			RunID:       run,
			TS:          now,
			Stage:       progress.StageFetchDone,
			Site:        "sub.example.com",
			URL:         "https://sub.example.com/clash",
			Bytes:       2048,
			StatusClass: progress.Status2xx,
			Attempts:    1,
			Dur:         150 * time.Millisecond,
		},
		{
			RunID:       run,
			TS:          now,
			Stage:       progress.StageFetchDone,
			Site:        "down.example.com",
			URL:         "https://down.example.com/x",
			StatusClass: progress.StatusError,
			Attempts:    3,
			Note:        "fetch timeout",
		},
		{RunID: run, TS: now, Stage: progress.StageCandidateDone, URL: "https://sub.example.com/clash", Outcome: progress.OutcomeClassified, Kind: "clash", Attempts: 1},
		{RunID: run, TS: now, Stage: progress.StageCandidateDone, URL: "https://down.example.com/x", Outcome: progress.OutcomeFailed, Attempts: 3},
		{RunID: run, TS: now, Stage: progress.StageRunDone, Dur: 5 * time.Second},
	}
}
