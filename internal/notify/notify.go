// Package notify delivers post-commit state changes to connected clients.
// Delivery is best effort: events may be delayed or dropped and nothing on
// the request path waits for them.
package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/kiwari-pos/tableservice/internal/logging"
)

// Notifier is called strictly after a transaction commits.
type Notifier interface {
	Notify(topic string, payload any)
}

// Event is one serialized notification.
type Event struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Sink receives flushed batches. Errors are logged by the batcher and
// never reach the caller of Notify.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(string, any) {}

// Batcher buffers events in a bounded channel and flushes them to every sink
// on a fixed interval. Notify never blocks; when the buffer is full the event
// is dropped.
type Batcher struct {
	events   chan Event
	sinks    []Sink
	interval time.Duration
	log      logging.Logger
	dropped  atomic.Int64
	now      func() time.Time
}

func NewBatcher(buffer int, interval time.Duration, log logging.Logger, sinks ...Sink) *Batcher {
	if buffer <= 0 {
		buffer = 256
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Batcher{
		events:   make(chan Event, buffer),
		sinks:    sinks,
		interval: interval,
		log:      logging.OrNop(log),
		now:      time.Now,
	}
}

func (b *Batcher) Notify(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.WithFields(map[string]any{"topic": topic, "error": err.Error()}).Error("notify: marshal payload")
		return
	}
	select {
	case b.events <- Event{Topic: topic, Payload: raw, At: b.now()}:
	default:
		n := b.dropped.Add(1)
		b.log.WithFields(map[string]any{"topic": topic, "dropped_total": n}).Warn("notify: buffer full, event dropped")
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (b *Batcher) Dropped() int64 {
	return b.dropped.Load()
}

// Run flushes on every tick until ctx is cancelled, then drains what is left.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var pending []Event
	for {
		select {
		case ev := <-b.events:
			pending = append(pending, ev)
		case <-ticker.C:
			pending = b.flush(ctx, pending)
		case <-ctx.Done():
			pending = b.drain(pending)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			b.flush(shutdownCtx, pending)
			cancel()
			return
		}
	}
}

func (b *Batcher) drain(pending []Event) []Event {
	for {
		select {
		case ev := <-b.events:
			pending = append(pending, ev)
		default:
			return pending
		}
	}
}

func (b *Batcher) flush(ctx context.Context, pending []Event) []Event {
	if len(pending) == 0 {
		return pending
	}
	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, pending); err != nil {
			b.log.WithFields(map[string]any{"events": len(pending), "error": err.Error()}).Warn("notify: sink publish failed")
		}
	}
	return nil
}
