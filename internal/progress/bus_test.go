package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func evt(jobID string, kind Kind) Event {
	e := Event{JobID: jobID, Kind: kind, TS: time.Now()}
	switch kind {
	case KindCrawling, KindStored:
		e.URL = "https://example.com/page"
	case KindSteeringNeeded:
		e.Link = "https://example.com/next"
	case KindFailed:
		e.Error = "fetch failed"
	}
	return e
}

type captureSink struct {
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.closed = true
	return nil
}

// TestBusDeliversInOrder verifies events reach a subscriber in publish order
// and the stream closes after the terminal event.
func TestBusDeliversInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(Config{})
	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	kinds := []Kind{KindCrawling, KindStored, KindCompleted}
	for _, k := range kinds {
		bus.Publish("job-1", evt("job-1", k))
	}

	var got []Kind
	for e := range ch {
		got = append(got, e.Kind)
	}
	require.Equal(t, kinds, got)
}

// TestBusLateSubscriberSeesOnlySubsequentEvents confirms there is no replay.
func TestBusLateSubscriberSeesOnlySubsequentEvents(t *testing.T) {
	t.Parallel()

	bus := NewBus(Config{})
	bus.Publish("job-1", evt("job-1", KindCrawling))
	bus.Publish("job-1", evt("job-1", KindStored))

	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	bus.Publish("job-1", evt("job-1", KindCompleted))

	var got []Kind
	for e := range ch {
		got = append(got, e.Kind)
	}
	require.Equal(t, []Kind{KindCompleted}, got)
}

// TestBusSubscribeAfterTerminal returns an already-closed stream.
func TestBusSubscribeAfterTerminal(t *testing.T) {
	t.Parallel()

	bus := NewBus(Config{})
	bus.Publish("job-1", evt("job-1", KindCancelled))

	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	_, open := <-ch
	require.False(t, open)
}

// TestBusIgnoresPublishesAfterTerminal drops events for finished jobs.
func TestBusIgnoresPublishesAfterTerminal(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	bus := NewBus(Config{}, sink)
	bus.Publish("job-1", evt("job-1", KindCompleted))
	bus.Publish("job-1", evt("job-1", KindStored))

	require.Len(t, sink.events, 1)
	require.Equal(t, KindCompleted, sink.events[0].Kind)
}

// TestBusCancelDetachesSubscriber closes the channel without affecting others.
func TestBusCancelDetachesSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus(Config{})
	chA, cancelA := bus.Subscribe("job-1")
	chB, cancelB := bus.Subscribe("job-1")
	defer cancelB()

	cancelA()
	cancelA() // second call is a no-op

	_, open := <-chA
	require.False(t, open)

	bus.Publish("job-1", evt("job-1", KindCrawling))
	select {
	case e := <-chB:
		require.Equal(t, KindCrawling, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber B did not receive event")
	}
}

// TestBusFansOutToSinks forwards valid events and skips invalid ones.
func TestBusFansOutToSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	bus := NewBus(Config{}, sink)

	bus.Publish("job-1", evt("job-1", KindCrawling))
	bus.Publish("job-1", Event{Kind: KindCrawling}) // missing job id and ts

	require.Len(t, sink.events, 1)
	require.Equal(t, "job-1", sink.events[0].JobID)

	require.NoError(t, bus.Close(context.Background()))
	require.True(t, sink.closed)
}
