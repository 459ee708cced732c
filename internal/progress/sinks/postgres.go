package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/progress"
)

const insertEventSQL = `
INSERT INTO crawl_events (job_id, kind, ts, payload)
VALUES ($1, $2, $3, $4)`

// EventExecer is the slice of pgxpool.Pool the store sink needs.
type EventExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// StoreSink persists every progress event to Postgres so finished jobs keep
// an auditable trail even though live streams never replay.
type StoreSink struct {
	db     EventExecer
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink over the given connection pool.
func NewStoreSink(db EventExecer, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{db: db, logger: logger}
}

// Consume inserts each event as one row. The full event is kept as a JSON
// payload next to the indexed columns.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	for _, evt := range batch {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := s.db.Exec(ctx, insertEventSQL,
			evt.JobID, string(evt.Kind), evt.TS, payload); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
