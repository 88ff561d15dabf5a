// Package bus implements a typed publish/subscribe dispatcher with bounded
// per-subscriber queues. Delivery is FIFO per (type, subscriber); a slow
// subscriber sheds its oldest pending events rather than stalling publishers.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

// Handler processes one delivered event. Handlers run on the subscriber's own
// goroutine and must do their own synchronization around shared state.
type Handler func(ctx context.Context, ev *event.Event)

// Subscription is the handle returned by Subscribe, usable to unsubscribe.
type Subscription struct {
	name    string
	typ     event.Type
	handler Handler

	mu       sync.Mutex // serializes enqueue/evict and queue close
	queue    chan *event.Event
	qclosed  bool
	done     chan struct{}
	doneOnce sync.Once
	inactive atomic.Bool
}

// Name returns the subscriber identity used in logs and metrics.
func (s *Subscription) Name() string { return s.name }

// Bus routes events to subscribers of their type.
type Bus struct {
	log        *slog.Logger
	queueDepth int
	grace      time.Duration
	known      map[event.Type]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	subs   map[event.Type][]*Subscription
	closed bool
	wg     sync.WaitGroup
}

// New creates a Bus. queueDepth bounds each subscriber's pending queue; grace
// bounds how long Close waits for queued deliveries before force-cancelling.
func New(log *slog.Logger, queueDepth int, grace time.Duration) *Bus {
	known := make(map[event.Type]struct{})
	for _, t := range event.KnownTypes() {
		known[t] = struct{}{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		log:        log,
		queueDepth: queueDepth,
		grace:      grace,
		known:      known,
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[event.Type][]*Subscription),
	}
}

// Subscribe registers handler for events of typ. Unknown types are a
// configuration error and fail here, at wiring time, never at publish time.
func (b *Bus) Subscribe(typ event.Type, name string, handler Handler) (*Subscription, error) {
	if _, ok := b.known[typ]; !ok {
		return nil, fmt.Errorf("subscribe %s: unknown event type %q", name, typ)
	}
	s := &Subscription{
		name:    name,
		typ:     typ,
		handler: handler,
		queue:   make(chan *event.Event, b.queueDepth),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: bus is closed", name)
	}
	b.subs[typ] = append(b.subs[typ], s)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.consume(s)
	return s, nil
}

// Publish hands ev to every current subscriber of its type without blocking.
// When a subscriber's queue is full its oldest pending event is evicted.
func (b *Bus) Publish(ev *event.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.log.Debug("publish on closed bus dropped", "event_id", ev.ID, "type", ev.Type)
		return
	}
	targets := make([]*Subscription, len(b.subs[ev.Type]))
	copy(targets, b.subs[ev.Type])
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	for _, s := range targets {
		if s.inactive.Load() {
			continue
		}
		if evicted := s.enqueue(ev); evicted != nil {
			metrics.QueueDropped.WithLabelValues(s.name).Inc()
			b.log.Warn("subscriber queue full, dropped oldest event",
				"subscriber", s.name, "dropped_event_id", evicted.ID, "type", evicted.Type)
		}
	}
}

// Unsubscribe stops future deliveries to s. Idempotent; already-dispatched
// handler invocations run to completion.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil || s.inactive.Swap(true) {
		return
	}
	b.mu.Lock()
	list := b.subs[s.typ]
	for i, cur := range list {
		if cur == s {
			b.subs[s.typ] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

// Close drains queued deliveries for up to the grace period, then cancels
// in-flight handlers and logs what was dropped. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.mu.Unlock()

	// Handlers may publish from consumer goroutines (the correlator flushes
	// back onto the bus), so a send can race this close. closeQueue and
	// enqueue share the subscription lock; late sends drop instead of
	// panicking.
	for _, s := range all {
		if !s.inactive.Load() {
			s.closeQueue()
		}
	}

	drained := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(b.grace):
		b.log.Warn("bus shutdown grace elapsed, cancelling in-flight handlers")
		b.cancel()
		<-drained
	}
	b.cancel()
}

// Utilization returns the highest queue fill ratio across subscribers (0-1).
func (b *Bus) Utilization() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var max float64
	for _, list := range b.subs {
		for _, s := range list {
			if b.queueDepth == 0 {
				continue
			}
			u := float64(len(s.queue)) / float64(b.queueDepth)
			if u > max {
				max = u
			}
		}
	}
	return max
}

func (b *Bus) consume(s *Subscription) {
	defer b.wg.Done()
	var droppedOnShutdown int
	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				if droppedOnShutdown > 0 {
					b.log.Warn("events dropped at shutdown",
						"subscriber", s.name, "count", droppedOnShutdown)
				}
				return
			}
			if b.ctx.Err() != nil {
				droppedOnShutdown++
				continue
			}
			b.deliver(s, ev)
		case <-s.done:
			return
		}
	}
}

func (b *Bus) deliver(s *Subscription, ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFailures.WithLabelValues(s.name).Inc()
			b.log.Error("subscriber handler panicked",
				"subscriber", s.name, "event_id", ev.ID, "type", ev.Type, "panic", r)
		}
	}()
	s.handler(b.ctx, ev)
}

// closeQueue closes the delivery channel exactly once, under the lock enqueue
// holds, so no send can hit a closed channel.
func (s *Subscription) closeQueue() {
	s.mu.Lock()
	if !s.qclosed {
		s.qclosed = true
		close(s.queue)
	}
	s.mu.Unlock()
}

// enqueue adds ev without blocking, evicting the oldest pending event when the
// queue is full. Returns the evicted event, if any. Events arriving after the
// queue closed are dropped.
func (s *Subscription) enqueue(ev *event.Event) *event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.qclosed {
		return nil
	}
	select {
	case s.queue <- ev:
		return nil
	default:
	}
	var evicted *event.Event
	select {
	case evicted = <-s.queue:
	default:
	}
	select {
	case s.queue <- ev:
		return evicted
	default:
		// Consumer raced us to the freed slot; ev itself is the casualty.
		return ev
	}
}
