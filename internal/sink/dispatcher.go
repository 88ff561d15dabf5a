package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

type delivery struct {
	announcement *Announcement
}

// Dispatcher is a fixed-size worker pool with a bounded queue between the
// timing gate and the sink. A stalled renderer therefore never blocks the
// dispatch loop: handoff is fire-and-forget with a per-call timeout.
type Dispatcher struct {
	log     *slog.Logger
	sinks   []Sink
	timeout time.Duration
	queue   chan delivery
	wg      sync.WaitGroup
}

// NewDispatcher starts a pool of n workers with queue capacity depth.
func NewDispatcher(ctx context.Context, log *slog.Logger, sinks []Sink, n, depth int, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		log:     log,
		sinks:   sinks,
		timeout: timeout,
		queue:   make(chan delivery, depth),
	}
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx)
		}()
	}
	return d
}

// Emit formats ev and enqueues it for delivery without blocking. Implements
// the gate's EmitFunc.
func (d *Dispatcher) Emit(ev *event.Event, delayed bool) {
	a := Format(ev, delayed)
	metrics.Announcements.WithLabelValues(a.Priority).Inc()
	select {
	case d.queue <- delivery{announcement: a}:
	default:
		metrics.SinkDropped.Inc()
		d.log.Warn("sink queue full, announcement dropped", "text", a.Text)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case dl, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, dl.announcement)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a *Announcement) {
	for _, s := range d.sinks {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Announce(callCtx, a)
		cancel()
		if err != nil {
			metrics.SinkFailures.Inc()
			d.log.Error("sink delivery failed", "sink", s.Name(), "err", err)
		}
	}
}

// Drain closes the queue and waits for in-flight deliveries.
func (d *Dispatcher) Drain() {
	close(d.queue)
	d.wg.Wait()
}
