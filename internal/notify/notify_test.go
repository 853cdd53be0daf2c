package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
}

func (s *recordingSink) Publish(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Event, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return s.err
}

func (s *recordingSink) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, ev := range b {
			out = append(out, ev.Topic)
		}
	}
	return out
}

func TestBatcher_NotifyNeverBlocks(t *testing.T) {
	b := NewBatcher(1, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		b.Notify("table.updated", map[string]int{"n": 1})
		b.Notify("table.updated", map[string]int{"n": 2})
		b.Notify("table.updated", map[string]int{"n": 3})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
	assert.Equal(t, int64(2), b.Dropped())
}

func TestBatcher_FlushesOnTick(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(16, 10*time.Millisecond, nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Notify("order.updated", map[string]string{"id": "o-1"})
	b.Notify("command.created", map[string]int{"command_number": 1})

	require.Eventually(t, func() bool {
		return len(sink.topics()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"order.updated", "command.created"}, sink.topics())
}

func TestBatcher_DrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(16, time.Hour, nil, sink)

	b.Notify("print_job.created", map[string]string{"id": "j-1"})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"print_job.created"}, sink.topics())
}

func TestBatcher_SinkErrorDoesNotStopOtherSinks(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	b := NewBatcher(16, 5*time.Millisecond, nil, failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Notify("table.updated", struct{}{})

	require.Eventually(t, func() bool {
		return len(ok.topics()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatcher_UnmarshalablePayloadIsSkipped(t *testing.T) {
	b := NewBatcher(4, time.Hour, nil)
	b.Notify("table.updated", make(chan int))
	assert.Len(t, b.events, 0)
	assert.Equal(t, int64(0), b.Dropped())
}

type fakePublisher struct {
	keys []string
	msgs []amqp.Publishing
	err  error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestAMQPSink_PublishesOneMessagePerEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, "tableservice.events")

	payload, _ := json.Marshal(map[string]string{"id": "t-5"})
	err := sink.Publish(context.Background(), []Event{
		{Topic: "table.updated", Payload: payload, At: time.Now()},
		{Topic: "order.updated", Payload: payload, At: time.Now()},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"table.updated", "order.updated"}, pub.keys)
	assert.Equal(t, "application/json", pub.msgs[0].ContentType)
	assert.JSONEq(t, `{"id":"t-5"}`, string(pub.msgs[0].Body))
}

func TestAMQPSink_PropagatesError(t *testing.T) {
	sink := NewAMQPSink(&fakePublisher{err: errors.New("channel closed")}, "x")
	err := sink.Publish(context.Background(), []Event{{Topic: "table.updated"}})
	assert.ErrorContains(t, err, "channel closed")
}
