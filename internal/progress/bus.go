package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSubscriberBuffer = 256
	defaultSinkTimeout      = 10 * time.Second
)

// Sink consumes batches of progress events, e.g. for logging, metrics, or
// durable export. Implementations must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Publisher is the emit side of the Bus; coordinators depend only on this.
type Publisher interface {
	Publish(jobID string, evt Event)
}

// Config controls Bus behavior.
type Config struct {
	// SubscriberBuffer is the channel capacity per subscriber. A subscriber
	// that falls this far behind starts losing events rather than stalling
	// the job (drops are logged).
	SubscriberBuffer int
	// SinkTimeout bounds each sink call.
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Bus fans job events out to per-job subscribers and to the global sinks.
// Events for one job are delivered in publish order. There is no replay
// buffer: a late subscriber sees only events published after it attached.
type Bus struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	subs     map[string][]*subscriber
	finished map[string]struct{}
	sinks    []Sink
}

// NewBus builds a Bus over the given sinks.
func NewBus(cfg Config, sinks ...Sink) *Bus {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		cfg:      cfg,
		logger:   logger,
		subs:     make(map[string][]*subscriber),
		finished: make(map[string]struct{}),
		sinks:    append([]Sink(nil), sinks...),
	}
}

// Publish delivers evt to the job's subscribers and the global sinks. It
// never blocks on a slow subscriber; a full subscriber buffer drops the
// event for that subscriber only. After a terminal event the job's streams
// are closed and later publishes for it are discarded.
func (b *Bus) Publish(jobID string, evt Event) {
	if b == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}

	b.mu.Lock()
	if _, done := b.finished[jobID]; done {
		b.mu.Unlock()
		return
	}
	for _, sub := range b.subs[jobID] {
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("progress subscriber lagging; event dropped",
				zap.String("job_id", jobID), zap.String("kind", string(evt.Kind)))
		}
	}
	if evt.Kind.Terminal() {
		b.finished[jobID] = struct{}{}
		for _, sub := range b.subs[jobID] {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
		delete(b.subs, jobID)
	}
	b.mu.Unlock()

	b.consumeSinks(jobID, evt)
}

// Subscribe attaches to a job's stream. The channel closes after a terminal
// event; if the job already finished, an immediately-closed channel is
// returned. The cancel func detaches early and is safe to call twice.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.cfg.SubscriberBuffer)}

	b.mu.Lock()
	if _, done := b.finished[jobID]; done {
		sub.closed = true
		close(sub.ch)
		b.mu.Unlock()
		return sub.ch, func() {}
	}
	b.subs[jobID] = append(b.subs[jobID], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[jobID]
		for i, s := range list {
			if s == sub {
				b.subs[jobID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Forget drops the finished-job marker so its id can be reused; called when
// a job is deleted from the registry.
func (b *Bus) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.finished, jobID)
}

// Close shuts down the sinks.
func (b *Bus) Close(ctx context.Context) error {
	var firstErr error
	for _, sink := range b.sinks {
		if err := sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close progress sink: %w", err)
		}
	}
	return firstErr
}

func (b *Bus) consumeSinks(jobID string, evt Event) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SinkTimeout)
		if err := sink.Consume(ctx, []Event{evt}); err != nil {
			b.logger.Warn("progress sink consume failed",
				zap.String("job_id", jobID), zap.Error(err))
		}
		cancel()
	}
}
