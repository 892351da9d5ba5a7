// Package events fans out domain activity (audit entries, NFC scans) to
// side channels: MQTT, InfluxDB and the WebSocket live feed.
//
// Publishing never blocks the caller. Events are queued on a bounded channel
// and delivered serially by a single goroutine started with Run; when the
// queue is full the event is dropped and a warning is logged.
package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
)

// DefaultQueueSize is the bus capacity used when NewBus gets a non-positive size.
const DefaultQueueSize = 256

// deliverTimeout bounds a single sink delivery.
const deliverTimeout = 5 * time.Second

// Event is one unit of activity.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Family returns the part of Type before the first dot ("audit" for
// "audit.user_login").
func (e Event) Family() string {
	family, _, _ := strings.Cut(e.Type, ".")
	return family
}

// Sink receives delivered events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(e Event)
}

// Bus queues events and delivers them to every subscribed sink.
type Bus struct {
	queue   chan Event
	logger  *logging.Logger
	mu      sync.RWMutex
	sinks   []Sink
	dropped atomic.Int64
}

// NewBus creates a bus with the given queue capacity.
func NewBus(size int, logger *logging.Logger) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus{
		queue:  make(chan Event, size),
		logger: logger,
	}
}

// Subscribe registers a sink. Sinks added after Run starts receive only
// events dequeued after the call.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish enqueues e without blocking. A zero Timestamp is set to now.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	select {
	case b.queue <- e:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event", "type", e.Type)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Run delivers events until ctx is cancelled, then drains what is left.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case e := <-b.queue:
			b.deliver(context.Background(), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-b.queue:
					b.deliver(context.Background(), e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		if err := s.Deliver(dctx, e); err != nil {
			b.logger.Warn("event delivery failed",
				"sink", s.Name(),
				"type", e.Type,
				"error", err,
			)
		}
		cancel()
	}
}
