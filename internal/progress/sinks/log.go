package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("kind", string(evt.Kind)),
			zap.Time("ts", evt.TS),
		}
		switch evt.Kind {
		case progress.KindDiscovered:
			fields = append(fields, zap.Int("count", evt.Count))
		case progress.KindCrawling:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Float64("progress", evt.Progress))
		case progress.KindStored:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("chunks", evt.Chunks))
		case progress.KindSteeringNeeded:
			fields = append(fields,
				zap.String("link", evt.Link),
				zap.Float64("confidence", evt.Confidence),
				zap.String("reasoning", evt.Reasoning))
		case progress.KindCompleted, progress.KindCancelled:
			fields = append(fields,
				zap.Int("total_pages", evt.TotalPages),
				zap.Int("total_chunks", evt.TotalChunks),
				zap.Duration("dur", evt.Duration))
		case progress.KindFailed:
			fields = append(fields, zap.String("error", evt.Error))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
