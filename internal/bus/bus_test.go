package bus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/herald/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(entity string) *event.Event {
	return event.New(event.TypeHomeStateChanged, "test", map[string]any{
		"entity_id": entity,
		"new_state": "open",
	})
}

func TestDeliveryOrderPerType(t *testing.T) {
	b := New(testLogger(), 128, time.Second)
	defer b.Close()

	const n = 50
	got := make(chan string, n)
	_, err := b.Subscribe(event.TypeHomeStateChanged, "order", func(_ context.Context, ev *event.Event) {
		got <- ev.Entity()
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		b.Publish(testEvent(fmt.Sprintf("door.n%03d", i)))
	}

	for i := 0; i < n; i++ {
		select {
		case entity := <-got:
			assert.Equal(t, fmt.Sprintf("door.n%03d", i), entity)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestFanOutToAllSubscribers(t *testing.T) {
	b := New(testLogger(), 16, time.Second)
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		_, err := b.Subscribe(event.TypeScheduleTriggered, fmt.Sprintf("sub%d", i),
			func(_ context.Context, _ *event.Event) { wg.Done() })
		require.NoError(t, err)
	}

	b.Publish(event.New(event.TypeScheduleTriggered, "scheduler", map[string]any{"schedule": "x"}))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all subscribers received the event")
	}
}

func TestDropOldestOnOverflow(t *testing.T) {
	const depth = 4
	b := New(testLogger(), depth, time.Second)

	release := make(chan struct{})
	var mu sync.Mutex
	var received []string
	_, err := b.Subscribe(event.TypeHomeStateChanged, "slow", func(_ context.Context, ev *event.Event) {
		<-release
		mu.Lock()
		received = append(received, ev.Entity())
		mu.Unlock()
	})
	require.NoError(t, err)

	// First event is picked up by the consumer and blocks; the rest fill the
	// queue. Publishing depth+3 more evicts the three oldest queued events.
	b.Publish(testEvent("door.n0"))
	time.Sleep(50 * time.Millisecond) // let the consumer take n0 and block
	for i := 1; i <= depth+3; i++ {
		b.Publish(testEvent(fmt.Sprintf("door.n%d", i)))
	}
	close(release)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, depth+1) // n0 plus the newest depth events
	assert.Equal(t, "door.n0", received[0])
	assert.Equal(t, fmt.Sprintf("door.n%d", depth+3), received[len(received)-1])
	// The survivors are the most recent `depth` events, still in order.
	for i := 1; i < len(received); i++ {
		assert.Equal(t, fmt.Sprintf("door.n%d", i+3), received[i])
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := New(testLogger(), 16, time.Second)
	defer b.Close()

	got := make(chan string, 2)
	_, err := b.Subscribe(event.TypeHomeStateChanged, "panicky", func(_ context.Context, ev *event.Event) {
		if ev.Entity() == "door.bad" {
			panic("boom")
		}
		got <- ev.Entity()
	})
	require.NoError(t, err)
	_, err = b.Subscribe(event.TypeHomeStateChanged, "healthy", func(_ context.Context, ev *event.Event) {
		got <- ev.Entity()
	})
	require.NoError(t, err)

	b.Publish(testEvent("door.bad"))
	b.Publish(testEvent("door.ok"))

	// healthy gets both, panicky survives its panic and gets the second.
	deadline := time.After(2 * time.Second)
	count := 0
	for count < 3 {
		select {
		case <-got:
			count++
		case <-deadline:
			t.Fatalf("only %d deliveries after panic, want 3", count)
		}
	}
}

func TestSubscribeUnknownType(t *testing.T) {
	b := New(testLogger(), 16, time.Second)
	defer b.Close()

	_, err := b.Subscribe(event.Type("mystery"), "bad", func(_ context.Context, _ *event.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New(testLogger(), 16, time.Second)
	defer b.Close()

	delivered := make(chan struct{}, 8)
	sub, err := b.Subscribe(event.TypeMemoryUpdated, "once", func(_ context.Context, _ *event.Event) {
		delivered <- struct{}{}
	})
	require.NoError(t, err)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // no-op
	b.Unsubscribe(nil) // no-op

	b.Publish(event.New(event.TypeMemoryUpdated, "test", map[string]any{"key": "k"}))
	select {
	case <-delivered:
		t.Fatal("unsubscribed handler still received an event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseWithRepublishingHandler(t *testing.T) {
	b := New(testLogger(), 8, 200*time.Millisecond)

	// The handler publishes from its consumer goroutine, so sends can still be
	// in flight while Close shuts the queues.
	_, err := b.Subscribe(event.TypeHomeStateChanged, "echo", func(_ context.Context, _ *event.Event) {
		b.Publish(event.New(event.TypeMemoryUpdated, "echo", map[string]any{"key": "k"}))
	})
	require.NoError(t, err)
	_, err = b.Subscribe(event.TypeMemoryUpdated, "drain", func(_ context.Context, _ *event.Event) {})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		b.Publish(testEvent(fmt.Sprintf("door.n%d", i)))
	}
	b.Close() // must not panic on queued republishes
}

func TestEnqueueAfterCloseDropsSilently(t *testing.T) {
	b := New(testLogger(), 4, 100*time.Millisecond)
	sub, err := b.Subscribe(event.TypeMemoryUpdated, "late", func(_ context.Context, _ *event.Event) {})
	require.NoError(t, err)
	b.Close()

	assert.NotPanics(t, func() {
		evicted := sub.enqueue(event.New(event.TypeMemoryUpdated, "test", map[string]any{"key": "k"}))
		assert.Nil(t, evicted)
	})
}

func TestCloseIdempotent(t *testing.T) {
	b := New(testLogger(), 16, 100*time.Millisecond)
	_, err := b.Subscribe(event.TypeMemoryUpdated, "s", func(_ context.Context, _ *event.Event) {})
	require.NoError(t, err)
	b.Close()
	b.Close() // no-op

	// Publishing after close is a silent drop, not a panic.
	b.Publish(event.New(event.TypeMemoryUpdated, "test", map[string]any{"key": "k"}))
}
