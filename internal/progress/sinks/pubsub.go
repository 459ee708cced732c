package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/agentx-ai/steercrawl/internal/progress"
)

// PubSubSink exports progress events to a Google Cloud Pub/Sub topic so
// downstream consumers (indexers, dashboards) can follow crawls without
// holding an open stream against this service.
type PubSubSink struct {
	topic *pubsub.Topic
}

// NewPubSubSink wraps an existing topic handle. The caller owns the client
// lifecycle; Close stops the topic's publish goroutines.
func NewPubSubSink(topic *pubsub.Topic) *PubSubSink {
	return &PubSubSink{topic: topic}
}

// Consume publishes each event as a JSON message. Job id and kind ride along
// as attributes so subscribers can filter without decoding the payload.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.topic == nil {
		return nil
	}
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		result := s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"job_id": evt.JobID,
				"kind":   string(evt.Kind),
			},
		})
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}

// Close flushes pending messages and stops the topic.
func (s *PubSubSink) Close(context.Context) error {
	if s != nil && s.topic != nil {
		s.topic.Stop()
	}
	return nil
}
