package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/subharvest/internal/progress"
)

// LogSink writes progress events to a zap logger at debug level, except run
// lifecycle events which are logged at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageFetchDone:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Int64("bytes", evt.Bytes),
				zap.Int("attempt", evt.Attempts),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StageCandidateDone:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("outcome", string(evt.Outcome)),
				zap.String("kind", evt.Kind),
				zap.Int("attempts", evt.Attempts),
			)
		default:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			s.logger.Info("progress event", fields...)
		default:
			s.logger.Debug("progress event", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
