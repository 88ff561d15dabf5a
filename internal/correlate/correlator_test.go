package correlate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

// capture collects re-emitted events in order.
type capture struct {
	mu     sync.Mutex
	events []*event.Event
	notify chan struct{}
}

func newCapture() *capture {
	return &capture{notify: make(chan struct{}, 32)}
}

func (c *capture) Publish(ev *event.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *capture) all() []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*event.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *capture) waitN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emission %d of %d", i+1, n)
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func securityGroups() []*Group {
	return []*Group{{
		Name:           "security",
		EventTypes:     []event.Type{event.TypeHomeStateChanged},
		EntityPrefixes: []string{"door", "window"},
	}}
}

func stateChange(t *testing.T, entity string, pri event.Priority) *event.Event {
	t.Helper()
	ev := event.New(event.TypeHomeStateChanged, "home-assistant", map[string]any{
		"entity_id": entity,
		"new_state": "open",
	})
	require.NoError(t, ev.SetPriority(pri))
	return ev
}

func TestThresholdFlushSynthesizesSummary(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), time.Hour, 3)

	c.Handle(context.Background(), stateChange(t, "door.front", event.PriorityNormal))
	c.Handle(context.Background(), stateChange(t, "door.back", event.PriorityNormal))
	assert.Empty(t, out.all(), "nothing flushes below threshold")

	c.Handle(context.Background(), stateChange(t, "window.kitchen", event.PriorityLow))
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	sum := events[0]
	assert.Equal(t, event.TypeCorrelated, sum.Type)
	assert.True(t, sum.Released())
	assert.Equal(t, event.PriorityNormal, sum.Priority(), "dominant priority is max of members")
	assert.Equal(t, 3, sum.Payload["count"])
	assert.ElementsMatch(t, []string{"door.front", "door.back", "window.kitchen"},
		sum.Payload["entities"])
}

func TestHighPriorityForcesImmediateFlush(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), time.Hour, 10)

	c.Handle(context.Background(), stateChange(t, "door.front", event.PriorityNormal))
	c.Handle(context.Background(), stateChange(t, "door.back", event.PriorityNormal))
	c.Handle(context.Background(), stateChange(t, "window.kitchen", event.PriorityHigh))
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	sum := events[0]
	assert.Equal(t, event.TypeCorrelated, sum.Type)
	assert.Equal(t, event.PriorityHigh, sum.Priority())
	assert.Equal(t, 3, sum.Payload["count"])
}

func TestSingleEventTimerFlushReEmitsUnchanged(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), 50*time.Millisecond, 3)

	ev := stateChange(t, "door.front", event.PriorityNormal)
	c.Handle(context.Background(), ev)
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID, "single buffered event is re-emitted, not summarized")
	assert.Equal(t, ev.Priority(), events[0].Priority())
	assert.True(t, events[0].Released())
	assert.False(t, ev.Released(), "the buffered original must stay unmarked")
}

func TestTimerFlushBelowThreshold(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), 50*time.Millisecond, 5)

	c.Handle(context.Background(), stateChange(t, "door.front", event.PriorityNormal))
	c.Handle(context.Background(), stateChange(t, "door.back", event.PriorityLow))
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeCorrelated, events[0].Type)
	assert.Equal(t, 2, events[0].Payload["count"])
}

func TestReleasedEventsPassUntouched(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), time.Hour, 2)

	ev := stateChange(t, "door.front", event.PriorityNormal).Release()
	c.Handle(context.Background(), ev)

	assert.Empty(t, out.all(), "released events are not re-buffered or re-published")
}

func TestUngroupedEntityReleasedImmediately(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), time.Hour, 2)

	ev := stateChange(t, "light.hall", event.PriorityNormal)
	c.Handle(context.Background(), ev)
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.True(t, events[0].Released())
	assert.False(t, ev.Released())
}

func TestGroupsAreIndependent(t *testing.T) {
	groups := []*Group{
		{Name: "security", EventTypes: []event.Type{event.TypeHomeStateChanged}, EntityPrefixes: []string{"door"}},
		{Name: "climate", EventTypes: []event.Type{event.TypeHomeStateChanged}, EntityPrefixes: []string{"sensor"}},
	}
	out := newCapture()
	c := New(testLogger(), out, groups, time.Hour, 3)

	c.Handle(context.Background(), stateChange(t, "door.front", event.PriorityNormal))
	// High-priority event for a different group must not flush "security".
	c.Handle(context.Background(), stateChange(t, "sensor.smoke", event.PriorityHigh))
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	assert.Equal(t, "sensor.smoke", events[0].Entity(), "only the climate group flushed")
}

func TestFlushAll(t *testing.T) {
	out := newCapture()
	c := New(testLogger(), out, securityGroups(), time.Hour, 10)

	c.Handle(context.Background(), stateChange(t, "door.front", event.PriorityNormal))
	c.Handle(context.Background(), stateChange(t, "door.back", event.PriorityNormal))
	c.FlushAll()
	out.waitN(t, 1)

	events := out.all()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeCorrelated, events[0].Type)
	assert.Equal(t, 2, events[0].Payload["count"])
}
