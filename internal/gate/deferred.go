package gate

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/metrics"
)

type deferredItem struct {
	ev        *event.Event
	resumeAt  time.Time
	firstSeen time.Time
}

// deferredQueue is a min-heap keyed by resume time, guarded by one lock.
// Defer/resume traffic is rare, so contention is not a concern.
type deferredQueue struct {
	mu    sync.Mutex
	items itemHeap
	seen  map[string]time.Time // event id -> first deferral time
}

func newDeferredQueue() *deferredQueue {
	return &deferredQueue{seen: make(map[string]time.Time)}
}

// firstSeen returns when the event was first deferred, recording now for new
// arrivals.
func (q *deferredQueue) firstSeen(id string, now time.Time) time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.seen[id]; ok {
		return t
	}
	q.seen[id] = now
	return now
}

// forget clears horizon tracking once an event leaves the gate.
func (q *deferredQueue) forget(id string) {
	q.mu.Lock()
	delete(q.seen, id)
	q.mu.Unlock()
}

func (q *deferredQueue) park(ev *event.Event, resumeAt, firstSeen time.Time) {
	q.mu.Lock()
	heap.Push(&q.items, &deferredItem{ev: ev, resumeAt: resumeAt, firstSeen: firstSeen})
	metrics.DeferredDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
}

// popDue removes and returns every item whose resume time has passed.
func (q *deferredQueue) popDue(now time.Time) []*deferredItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*deferredItem
	for len(q.items) > 0 && !q.items[0].resumeAt.After(now) {
		due = append(due, heap.Pop(&q.items).(*deferredItem))
	}
	metrics.DeferredDepth.Set(float64(len(q.items)))
	return due
}

func (q *deferredQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *deferredQueue) snapshot() []DeferredItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeferredItem, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, DeferredItem{
			EventID:  it.ev.ID,
			Type:     string(it.ev.Type),
			Priority: it.ev.Priority().String(),
			ResumeAt: it.resumeAt,
			Since:    it.firstSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResumeAt.Before(out[j].ResumeAt) })
	return out
}

type itemHeap []*deferredItem

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].resumeAt.Before(h[j].resumeAt) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(*deferredItem)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
