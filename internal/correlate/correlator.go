// Package correlate buffers bursts of related events per group and flushes
// them either individually or as one synthesized summary event.
package correlate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

// Publisher re-emits flushed events onto the bus.
type Publisher interface {
	Publish(ev *event.Event)
}

// Group describes one correlation group: which event types it covers and,
// optionally, which entity prefixes. Groups are matched in configured order.
type Group struct {
	Name           string
	EventTypes     []event.Type
	EntityPrefixes []string
}

// Covers reports whether the group buffers events of typ with the given entity.
// An empty prefix list covers every entity of the group's types.
func (g *Group) Covers(typ event.Type, entity string) bool {
	match := false
	for _, t := range g.EventTypes {
		if t == typ {
			match = true
			break
		}
	}
	if !match {
		return false
	}
	if len(g.EntityPrefixes) == 0 {
		return true
	}
	family := entityFamily(entity)
	for _, p := range g.EntityPrefixes {
		if p == family {
			return true
		}
	}
	return false
}

// entityFamily is the first dot-or-slash segment of an entity id
// ("door.front" -> "door").
func entityFamily(entity string) string {
	for i, r := range entity {
		if r == '.' || r == '/' {
			return entity[:i]
		}
	}
	return entity
}

// Per-group state machine: idle (no buffer) -> buffering (timer armed) ->
// flushing -> idle. Each group owns its state exclusively; groups never share
// a lock.
type groupState struct {
	mu    sync.Mutex
	buf   []*event.Event
	timer *time.Timer
	gen   uint64 // invalidates stale timer callbacks after an early flush
}

// Correlator implements the sliding-window batching stage.
type Correlator struct {
	log    *slog.Logger
	out    Publisher
	groups []*Group

	paramMu   sync.RWMutex
	window    time.Duration
	threshold int

	stateMu sync.Mutex
	states  map[string]*groupState
}

// New creates a Correlator flushing into out.
func New(log *slog.Logger, out Publisher, groups []*Group, window time.Duration, threshold int) *Correlator {
	return &Correlator{
		log:       log,
		out:       out,
		groups:    groups,
		window:    window,
		threshold: threshold,
		states:    make(map[string]*groupState),
	}
}

// SetParams updates window duration and threshold; windows already buffering
// keep the values they started with.
func (c *Correlator) SetParams(window time.Duration, threshold int) {
	c.paramMu.Lock()
	c.window = window
	c.threshold = threshold
	c.paramMu.Unlock()
}

// EventTypes returns the union of event types covered by any group, i.e. the
// bus topics the correlator should subscribe to.
func (c *Correlator) EventTypes() []event.Type {
	seen := make(map[event.Type]struct{})
	var out []event.Type
	for _, g := range c.groups {
		for _, t := range g.EventTypes {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Handle is the bus handler. Events the correlator itself released pass
// through untouched; events outside every group are released immediately.
func (c *Correlator) Handle(_ context.Context, ev *event.Event) {
	if ev.Released() {
		return
	}
	g := c.groupFor(ev)
	if g == nil {
		c.out.Publish(ev.Release())
		return
	}
	c.buffer(g, ev)
}

func (c *Correlator) groupFor(ev *event.Event) *Group {
	entity := ev.Entity()
	for _, g := range c.groups {
		if g.Covers(ev.Type, entity) {
			return g
		}
	}
	return nil
}

func (c *Correlator) buffer(g *Group, ev *event.Event) {
	c.paramMu.RLock()
	window, threshold := c.window, c.threshold
	c.paramMu.RUnlock()

	st := c.state(g.Name)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.buf = append(st.buf, ev)
	if len(st.buf) == 1 {
		gen := st.gen
		st.timer = time.AfterFunc(window, func() {
			c.flushTimer(g.Name, st, gen)
		})
	}

	// A high-priority member or a threshold breach cuts the window short.
	switch {
	case ev.Priority() == event.PriorityHigh:
		c.flushLocked(g.Name, st, "priority")
	case len(st.buf) >= threshold:
		c.flushLocked(g.Name, st, "threshold")
	}
}

func (c *Correlator) state(name string) *groupState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	st, ok := c.states[name]
	if !ok {
		st = &groupState{}
		c.states[name] = st
	}
	return st
}

func (c *Correlator) flushTimer(name string, st *groupState, gen uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen || len(st.buf) == 0 {
		return // already flushed early
	}
	c.flushLocked(name, st, "timer")
}

// flushLocked empties the buffer and re-emits. Caller holds st.mu, so no two
// flushes of the same group ever run concurrently.
func (c *Correlator) flushLocked(name string, st *groupState, reason string) {
	buf := st.buf
	st.buf = nil
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if len(buf) == 0 {
		return
	}
	metrics.CorrelationFlushes.WithLabelValues(reason).Inc()

	if len(buf) == 1 {
		c.out.Publish(buf[0].Release())
		return
	}
	summary := event.NewCorrelated(name, buf)
	c.log.Debug("correlated burst flushed",
		"group", name, "count", len(buf), "reason", reason, "priority", summary.Priority())
	c.out.Publish(summary.Release())
}

// FlushAll force-flushes every buffering group; called at shutdown.
func (c *Correlator) FlushAll() {
	c.stateMu.Lock()
	states := make(map[string]*groupState, len(c.states))
	for name, st := range c.states {
		states[name] = st
	}
	c.stateMu.Unlock()

	for name, st := range states {
		st.mu.Lock()
		c.flushLocked(name, st, "shutdown")
		st.mu.Unlock()
	}
}
