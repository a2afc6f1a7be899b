// Package events provides a bounded, best-effort pub/sub bus for internal
// diagnostics: config reloads, stream start/stop, clock-skew steps, and
// metric-cardinality warnings. It never blocks a publisher — a slow or
// absent subscriber drops events rather than back-pressuring the producer,
// which matters because producers here include the control-pipe stream
// handler and the query engine's hot poll path.
package events

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/99souls/presentmon/internal/telemetry/metrics"
)

// Category enumerates the diagnostic event families the core emits.
const (
	CategoryLogChannel    = "log_channel"
	CategoryIntrospection = "introspection"
	CategoryControlPipe   = "control_pipe"
	CategoryRing          = "ring"
	CategoryQuery         = "query"
	CategoryConfig        = "config_change"
)

// Event is the structured envelope for diagnostic events.
type Event struct {
	Time     time.Time              `json:"time"`
	Category string                 `json:"category"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity,omitempty"` // info|warn|error
	Labels   map[string]string      `json:"labels,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Subscription is a handle representing one consumer of the bus.
type Subscription interface {
	C() <-chan Event
	Close() error
	ID() int64
}

// BusStats reports bus-wide runtime counters.
type BusStats struct {
	Subscribers        int64
	Published          uint64
	Dropped            uint64
	PerSubscriberDrops map[int64]uint64
}

// Bus is a bounded, non-blocking event bus.
type Bus interface {
	Publish(ev Event) error
	PublishCtx(ctx context.Context, ev Event) error
	Subscribe(buffer int) (Subscription, error)

	// SubscribeFiltered is Subscribe narrowed to the given categories, so
	// a consumer that only cares about, say, CategoryQuery doesn't have to
	// filter every control-pipe and log-channel event out of its own read
	// loop. No categories means unfiltered, same as Subscribe.
	SubscribeFiltered(buffer int, categories ...string) (Subscription, error)
	Unsubscribe(sub Subscription) error
	Stats() BusStats
}

// NewBus creates a bus that reports its own throughput via provider.
func NewBus(provider metrics.Provider) Bus {
	b := &eventBus{subs: make(map[int64]*subscriber), provider: provider}
	b.initMetrics()
	return b
}

type eventBus struct {
	mu        sync.RWMutex
	subs      map[int64]*subscriber
	nextID    int64
	published atomic.Uint64
	dropped   atomic.Uint64

	provider   metrics.Provider
	mPublished metrics.Counter
	mDropped   metrics.Counter
}

func (b *eventBus) initMetrics() {
	if b.provider == nil {
		return
	}
	b.mPublished = b.provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "presentmon", Subsystem: "events", Name: "published_total", Help: "Total diagnostic events published"}})
	b.mDropped = b.provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "presentmon", Subsystem: "events", Name: "dropped_total", Help: "Total diagnostic events dropped due to a full subscriber buffer", Labels: []string{"subscriber"}}})
}

func (b *eventBus) Publish(ev Event) error {
	if ev.Category == "" {
		return errors.New("event missing category")
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	b.published.Add(1)
	if b.mPublished != nil {
		b.mPublished.Inc(1)
	}

	for _, s := range subs {
		if !s.wants(ev.Category) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
			if b.mDropped != nil {
				b.mDropped.Inc(1, s.idLabel)
			}
		}
	}
	return nil
}

func (b *eventBus) PublishCtx(ctx context.Context, ev Event) error {
	return b.Publish(ev)
}

func (b *eventBus) Subscribe(buffer int) (Subscription, error) {
	return b.SubscribeFiltered(buffer)
}

func (b *eventBus) SubscribeFiltered(buffer int, categories ...string) (Subscription, error) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	id := atomic.AddInt64(&b.nextID, 1)
	sub := &subscriber{id: id, ch: ch, bus: b, idLabel: strconv.FormatInt(id, 10)}
	if len(categories) > 0 {
		sub.categories = make(map[string]struct{}, len(categories))
		for _, c := range categories {
			sub.categories[c] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return sub, nil
}

func (b *eventBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	id := sub.ID()
	b.mu.Lock()
	s := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if s != nil {
		close(s.ch)
	}
	return nil
}

func (b *eventBus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := BusStats{Subscribers: int64(len(b.subs)), Published: b.published.Load(), Dropped: b.dropped.Load(), PerSubscriberDrops: make(map[int64]uint64)}
	for id, s := range b.subs {
		stats.PerSubscriberDrops[id] = s.dropped.Load()
	}
	return stats
}

type subscriber struct {
	id         int64
	ch         chan Event
	bus        *eventBus
	dropped    atomic.Uint64
	idLabel    string
	categories map[string]struct{} // nil means unfiltered
}

func (s *subscriber) C() <-chan Event { return s.ch }
func (s *subscriber) ID() int64       { return s.id }
func (s *subscriber) Close() error    { return s.bus.Unsubscribe(s) }

func (s *subscriber) wants(category string) bool {
	if s.categories == nil {
		return true
	}
	_, ok := s.categories[category]
	return ok
}
